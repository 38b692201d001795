// Package fsm is a declarative, append-only finite state machine engine.
//
// Feature code plugs entity types and transitions in at startup:
//
//	fsm.RegisterStateModel("task", memstore.New("task"))
//	fsm.RegisterStateTransition[StartTask]("task", fsm.FromStates("CREATED"))
//
// and callers drive them through a StateManager:
//
//	sm, err := fsm.GetStateManager()
//	if err != nil {
//		return err
//	}
//
//	rec, err := sm.ExecuteTransition(ctx, task, "start_task", payload, user)
//
// Every successful transition appends one StateRecord. Records are never
// updated or deleted; the current state of an entity is its newest record.
// Concurrent transitions on the same entity are not serialized, so history may
// fork. The record with the greatest (time-ordered) ID is the current state.
package fsm
