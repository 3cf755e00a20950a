package procurement

// Command is a workflow command applied to a purchase request.
type Command string

const (
	CmdSubmit        Command = "submit"
	CmdApproveCash   Command = "approve_cash"
	CmdApprove       Command = "approve"
	CmdDisapprove    Command = "disapprove"
	CmdUpdate        Command = "update"
	CmdIssueCanvass  Command = "issue_canvass"
	CmdBuildAbstract Command = "build_abstract"
	CmdCancel        Command = "cancel"
)

// PR statuses.
const (
	PRDraft            = "draft"
	PRPending          = "pending"
	PRCashAvailable    = "approved_cash_available"
	PRApproved         = "approved"
	PRForCanvassing    = "for_canvassing"
	PRForRecanvassing  = "for_recanvassing"
	PRForAbstract      = "for_abstract"
	PRPartiallyAwarded = "partially_awarded"
	PRAwarded          = "awarded"
	PRCompleted        = "completed"
	PRDisapproved      = "disapproved"
	PRCancelled        = "cancelled"
)

// prTransitions is the full (status, command) -> next status table for
// the purchase request. Pairs not listed here are rejected; there is no
// other status branching anywhere in the workflow.
//
// A partially awarded PR re-enters canvassing as a recanvass round; all
// other canvass entries use for_canvassing. The award command has no
// row here because its outcome (awarded vs partially_awarded) depends
// on item counts; its source states live in awardableStates below.
var prTransitions = map[string]map[Command]string{
	PRDraft: {
		CmdSubmit: PRPending,
		CmdUpdate: PRDraft,
		CmdCancel: PRCancelled,
	},
	PRDisapproved: {
		CmdSubmit: PRPending,
		CmdUpdate: PRDraft,
		CmdCancel: PRCancelled,
	},
	PRPending: {
		CmdApproveCash: PRCashAvailable,
		CmdCancel:      PRCancelled,
	},
	PRCashAvailable: {
		CmdApprove:    PRApproved,
		CmdDisapprove: PRDisapproved,
		CmdCancel:     PRCancelled,
	},
	PRApproved: {
		CmdIssueCanvass: PRForCanvassing,
		CmdCancel:       PRCancelled,
	},
	PRForCanvassing: {
		CmdIssueCanvass:  PRForCanvassing,
		CmdBuildAbstract: PRForAbstract,
		CmdCancel:        PRCancelled,
	},
	PRForRecanvassing: {
		CmdIssueCanvass:  PRForRecanvassing,
		CmdBuildAbstract: PRForAbstract,
		CmdCancel:        PRCancelled,
	},
	PRForAbstract: {
		CmdIssueCanvass: PRForCanvassing,
		CmdCancel:       PRCancelled,
	},
	PRPartiallyAwarded: {
		CmdIssueCanvass: PRForRecanvassing,
		CmdCancel:       PRCancelled,
	},
	PRAwarded: {
		CmdCancel: PRCancelled,
	},
	PRCompleted: {},
	PRCancelled: {},
}

// NextState resolves the transition table for (current, cmd).
func NextState(current string, cmd Command) (string, bool) {
	next, ok := prTransitions[current][cmd]
	return next, ok
}

// awardableStates lists the statuses the award command may act on. It
// has no row in prTransitions because its destination depends on item
// counts, but its source states are still closed: a cancelled or
// otherwise terminal PR must stay where it is even if an approved
// abstract is left over.
var awardableStates = map[string]bool{
	PRForCanvassing:    true,
	PRForRecanvassing:  true,
	PRForAbstract:      true,
	PRPartiallyAwarded: true,
	PRAwarded:          true,
}

// Awardable reports whether the award command may act on a PR status.
func Awardable(status string) bool {
	return awardableStates[status]
}

// Purchase order commands.
const (
	CmdIssue       Command = "issue"
	CmdForDelivery Command = "for_delivery"
	CmdDeliver     Command = "deliver"
)

// poTransitions is the purchase order lifecycle table.
var poTransitions = map[string]map[Command]string{
	"draft":        {CmdSubmit: "pending", CmdCancel: "cancelled"},
	"pending":      {CmdApprove: "approved", CmdCancel: "cancelled"},
	"approved":     {CmdIssue: "issued", CmdCancel: "cancelled"},
	"issued":       {CmdForDelivery: "for_delivery", CmdCancel: "cancelled"},
	"for_delivery": {CmdDeliver: "delivered", CmdCancel: "cancelled"},
	"delivered":    {},
	"cancelled":    {},
}

// NextPOState resolves the purchase order table for (current, cmd).
func NextPOState(current string, cmd Command) (string, bool) {
	next, ok := poTransitions[current][cmd]
	return next, ok
}
