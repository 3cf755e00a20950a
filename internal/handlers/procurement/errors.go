package procurement

import (
	"errors"
	"net/http"

	"procuro/internal/response"
)

// Workflow errors. Callers branch on these messages, so each names the
// specific reason a command was rejected.
var (
	// ErrDuplicateSupplier: an active RFQ already exists for this
	// supplier in the PR's current canvassing batch.
	ErrDuplicateSupplier = errors.New("an active request for quotation already exists for this supplier in the current batch")

	// ErrNothingToIssue: issue-for-canvassing found no draft RFQs.
	ErrNothingToIssue = errors.New("no draft request for quotations to issue for canvassing")

	// ErrSupplierNotSet: an RFQ cannot complete without a supplier.
	ErrSupplierNotSet = errors.New("request for quotation has no supplier set")

	// ErrPendingCanvassers: the abstract cannot be built while RFQs of
	// the current batch remain in canvassing or draft.
	ErrPendingCanvassers = errors.New("pending request for quotations remain in canvassing or draft")

	// ErrNoCompletedRFQ: the current batch has zero completed RFQs.
	ErrNoCompletedRFQ = errors.New("no completed request for quotation in the current batch")

	// ErrNothingToAward: the PR has no abstract of quotation in approved
	// status.
	ErrNothingToAward = errors.New("no approved abstract of quotation to award")

	// ErrNotAwardable: the PR status does not admit the award command.
	// A cancelled PR stays cancelled even when an approved abstract is
	// left over from before the cancellation.
	ErrNotAwardable = errors.New("purchase request is not open for award")

	// ErrAlreadyProcessing: content edits are only legal while the PR is
	// in draft or disapproved.
	ErrAlreadyProcessing = errors.New("purchase request is already being processed and can no longer be edited")

	// ErrAwardDetailMissing: no quotation detail exists for the chosen
	// awardee of an item. Data-integrity fault; the award attempt aborts.
	ErrAwardDetailMissing = errors.New("no quotation detail found for the chosen awardee")

	// ErrInvalidTransition: the (status, command) pair is not in the
	// transition table.
	ErrInvalidTransition = errors.New("transition not allowed from the current status")
)

// failWorkflow maps a workflow error to its HTTP status and writes the
// error envelope. State-conflict errors are 409, integrity faults 422,
// anything unexpected 500.
func failWorkflow(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateSupplier),
		errors.Is(err, ErrNothingToIssue),
		errors.Is(err, ErrSupplierNotSet),
		errors.Is(err, ErrPendingCanvassers),
		errors.Is(err, ErrNoCompletedRFQ),
		errors.Is(err, ErrNothingToAward),
		errors.Is(err, ErrNotAwardable),
		errors.Is(err, ErrAlreadyProcessing),
		errors.Is(err, ErrInvalidTransition):
		response.Err(w, err.Error(), 409)
	case errors.Is(err, ErrAwardDetailMissing):
		response.Err(w, err.Error(), 422)
	default:
		response.Err(w, "internal error", 500)
	}
}
