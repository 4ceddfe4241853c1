package arbor

// Event names the lifecycle stages of save/delete/restore operations.
type Event string

const (
	EventSaving    Event = "saving"
	EventCreating  Event = "creating"
	EventCreated   Event = "created"
	EventUpdating  Event = "updating"
	EventUpdated   Event = "updated"
	EventSaved     Event = "saved"
	EventDeleting  Event = "deleting"
	EventDeleted   Event = "deleted"
	EventRestoring Event = "restoring"
	EventRestored  Event = "restored"
)

// cancelable reports whether a false listener return aborts the
// operation before any I/O for that stage.
func (ev Event) cancelable() bool {
	switch ev {
	case EventSaving, EventCreating, EventUpdating, EventDeleting, EventRestoring:
		return true
	}
	return false
}

// Listener observes one lifecycle event. Returning false from a
// cancelable event aborts the operation; the return value is ignored
// for post events.
type Listener func(*Entity) bool

// eventBank holds the ordered listener lists per table and event.
// Appended to at boot, read-only afterwards.
type eventBank struct {
	byTable map[string]map[Event][]Listener
}

func newEventBank() *eventBank {
	return &eventBank{byTable: map[string]map[Event][]Listener{}}
}

func (b *eventBank) add(table string, event Event, fn Listener) {
	listeners, ok := b.byTable[table]
	if !ok {
		listeners = map[Event][]Listener{}
		b.byTable[table] = listeners
	}
	listeners[event] = append(listeners[event], fn)
}

// fire invokes listeners in registration order; false means the
// operation must be skipped.
func (b *eventBank) fire(event Event, e *Entity) bool {
	for _, fn := range b.byTable[e.schema.Table][event] {
		if !fn(e) && event.cancelable() {
			return false
		}
	}
	return true
}

// Listen registers a listener for one lifecycle event of an entity type.
func (db *DB) Listen(entity string, event Event, fn Listener) error {
	s, err := db.schemaFor(entity)
	if err != nil {
		return err
	}
	db.events.add(s.Table, event, fn)
	return nil
}

// Observer method sets. An observer object implements any subset; each
// implemented method is registered as a listener for the like-named
// event.
type (
	// SavingObserver cancels the whole save by returning false.
	SavingObserver interface{ Saving(*Entity) bool }
	// CreatingObserver cancels the insert by returning false.
	CreatingObserver interface{ Creating(*Entity) bool }
	// CreatedObserver runs after a successful insert.
	CreatedObserver interface{ Created(*Entity) }
	// UpdatingObserver cancels the update by returning false.
	UpdatingObserver interface{ Updating(*Entity) bool }
	// UpdatedObserver runs after a successful update.
	UpdatedObserver interface{ Updated(*Entity) }
	// SavedObserver runs after every completed save.
	SavedObserver interface{ Saved(*Entity) }
	// DeletingObserver cancels the delete by returning false.
	DeletingObserver interface{ Deleting(*Entity) bool }
	// DeletedObserver runs after a completed delete.
	DeletedObserver interface{ Deleted(*Entity) }
	// RestoringObserver cancels the restore by returning false.
	RestoringObserver interface{ Restoring(*Entity) bool }
	// RestoredObserver runs after a completed restore.
	RestoredObserver interface{ Restored(*Entity) }
)

// Observe registers every like-named method of observer as a listener
// on the entity type.
func (db *DB) Observe(entity string, observer interface{}) error {
	s, err := db.schemaFor(entity)
	if err != nil {
		return err
	}
	table := s.Table

	if o, ok := observer.(SavingObserver); ok {
		db.events.add(table, EventSaving, o.Saving)
	}
	if o, ok := observer.(CreatingObserver); ok {
		db.events.add(table, EventCreating, o.Creating)
	}
	if o, ok := observer.(CreatedObserver); ok {
		db.events.add(table, EventCreated, adapt(o.Created))
	}
	if o, ok := observer.(UpdatingObserver); ok {
		db.events.add(table, EventUpdating, o.Updating)
	}
	if o, ok := observer.(UpdatedObserver); ok {
		db.events.add(table, EventUpdated, adapt(o.Updated))
	}
	if o, ok := observer.(SavedObserver); ok {
		db.events.add(table, EventSaved, adapt(o.Saved))
	}
	if o, ok := observer.(DeletingObserver); ok {
		db.events.add(table, EventDeleting, o.Deleting)
	}
	if o, ok := observer.(DeletedObserver); ok {
		db.events.add(table, EventDeleted, adapt(o.Deleted))
	}
	if o, ok := observer.(RestoringObserver); ok {
		db.events.add(table, EventRestoring, o.Restoring)
	}
	if o, ok := observer.(RestoredObserver); ok {
		db.events.add(table, EventRestored, adapt(o.Restored))
	}
	return nil
}

func adapt(fn func(*Entity)) Listener {
	return func(e *Entity) bool {
		fn(e)
		return true
	}
}
