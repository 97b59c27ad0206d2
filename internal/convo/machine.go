package convo

import (
	"github.com/crewledger/crewledger/internal/model"
)

// Action is what the orchestrator must do for an inbound message. The state
// machine itself is side-effect free; the caller applies the action and
// persists the next state.
type Action int

const (
	// ActionNone holds the current state; the message was not a trigger.
	// The orchestrator replies with the state's reprompt.
	ActionNone Action = iota
	// ActionRunIntake runs the full pipeline on the attached image.
	ActionRunIntake
	// ActionStartMissedFlow creates a flagged missed-receipt record and
	// begins the guided detail collection.
	ActionStartMissedFlow
	// ActionCaptureMissedDetails parses the guided-flow reply into the
	// requested fields, best effort.
	ActionCaptureMissedDetails
	// ActionConfirmRecord marks the in-flight record accepted.
	ActionConfirmRecord
	// ActionRejectRecord flags the in-flight record as rejected by the
	// submitter and asks for a retake or manual text.
	ActionRejectRecord
	// ActionCaptureManualEntry stores free text against the rejected record.
	ActionCaptureManualEntry
	// ActionCaptureName completes the one-shot name sub-exchange.
	ActionCaptureName
	// ActionCaptureLanguage reads the worker's language choice and stores
	// the preference.
	ActionCaptureLanguage
)

// Inbound is the slice of an inbound message the state machine looks at.
type Inbound struct {
	Body     string
	HasImage bool
}

// Decision is the transition outcome: the action to execute and the state
// the worker lands in once the action commits. For ActionRunIntake the
// final Next also depends on whether the pipeline produced a confirmable
// record; the orchestrator resolves that after the run.
type Decision struct {
	Action Action
	Next   model.StateTag
}

// Decide computes the transition for a worker's current state and message.
// autoAccept selects the process-wide confirm mode: when false, successful
// submissions park in awaiting_confirmation for a YES/NO reply.
//
// Unknown content never errors: worst case the state holds (ActionNone) or
// the free text is captured verbatim by the active flow's handler.
func Decide(current model.StateTag, msg Inbound, pats Patterns, autoAccept bool) Decision {
	afterIntake := model.StateIdle
	if !autoAccept {
		afterIntake = model.StateAwaitingConfirmation
	}

	switch current {
	case model.StateIdle:
		if msg.HasImage {
			return Decision{Action: ActionRunIntake, Next: afterIntake}
		}
		if pats.IsMissingReceiptPhrase(msg.Body) {
			return Decision{Action: ActionStartMissedFlow, Next: model.StateAwaitingMissedDetails}
		}
		return Decision{Action: ActionNone, Next: model.StateIdle}

	case model.StateAwaitingName:
		return Decision{Action: ActionCaptureName, Next: model.StateIdle}

	case model.StateAwaitingLanguage:
		// Everything including images waits until a language is chosen.
		// An unmatched reply holds the state and reprompts.
		return Decision{Action: ActionCaptureLanguage, Next: model.StateIdle}

	case model.StateAwaitingConfirmation:
		// A fresh image is an independent submission; it neither merges
		// with nor consumes the pending record's confirmation.
		if msg.HasImage {
			return Decision{Action: ActionRunIntake, Next: afterIntake}
		}
		if pats.IsAffirmative(msg.Body) {
			return Decision{Action: ActionConfirmRecord, Next: model.StateIdle}
		}
		if pats.IsNegative(msg.Body) {
			return Decision{Action: ActionRejectRecord, Next: model.StateAwaitingManualEntry}
		}
		return Decision{Action: ActionNone, Next: model.StateAwaitingConfirmation}

	case model.StateAwaitingManualEntry:
		// The reject prompt offers retake-or-manual-text; an image is a retake.
		if msg.HasImage {
			return Decision{Action: ActionRunIntake, Next: afterIntake}
		}
		return Decision{Action: ActionCaptureManualEntry, Next: model.StateIdle}

	case model.StateAwaitingMissedDetails:
		if msg.HasImage {
			return Decision{Action: ActionRunIntake, Next: afterIntake}
		}
		return Decision{Action: ActionCaptureMissedDetails, Next: model.StateIdle}
	}

	return Decision{Action: ActionNone, Next: model.StateIdle}
}
