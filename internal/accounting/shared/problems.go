package shared

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalshared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Problems maps accounting errors onto HTTP statuses. Configuration and
// context defects are 422, period state conflicts are 409. An unbalanced
// entry stays a 500 since it signals a broken rule set.
var Problems = httpx.ErrorMapper{
	{Target: ErrPeriodNotFound, Status: http.StatusNotFound, Title: "Period Not Found"},
	{Target: ErrJournalNotFound, Status: http.StatusNotFound, Title: "Journal Entry Not Found"},
	{Target: ErrNoPeriodDefined, Status: http.StatusUnprocessableEntity, Title: "No Period Defined"},
	{Target: ErrPeriodClosed, Status: http.StatusConflict, Title: "Period Closed"},
	{Target: ErrPeriodLocked, Status: http.StatusConflict, Title: "Period Locked"},
	{Target: ErrPeriodOverlap, Status: http.StatusConflict, Title: "Period Overlap"},
	{Target: ErrConcurrentPeriodTransition, Status: http.StatusConflict, Title: "Concurrent Period Transition"},
	{Target: internalshared.ErrInvalidPeriodTransition, Status: http.StatusConflict, Title: "Invalid Period Transition"},
	{Target: ErrAlreadyReversed, Status: http.StatusConflict, Title: "Already Reversed"},
	{Target: ErrDuplicatePosting, Status: http.StatusConflict, Title: "Duplicate Posting"},
	{Target: ErrNoRulesConfigured, Status: http.StatusUnprocessableEntity, Title: "No Rules Configured"},
	{Target: ErrAccountNotFound, Status: http.StatusUnprocessableEntity, Title: "Account Not Found"},
	{Target: ErrMissingAmountSource, Status: http.StatusUnprocessableEntity, Title: "Missing Amount Source"},
	{Target: ErrCollectorRequired, Status: http.StatusUnprocessableEntity, Title: "Collector Required"},
	{Target: ErrZeroAmount, Status: http.StatusUnprocessableEntity, Title: "Zero Amount"},
	{Target: ErrInvalidPosting, Status: http.StatusUnprocessableEntity, Title: "Invalid Posting"},
	{Target: ErrInvalidContext, Status: http.StatusUnprocessableEntity, Title: "Invalid Event Context"},
	{Target: ErrInvalidCondition, Status: http.StatusUnprocessableEntity, Title: "Invalid Rule Condition"},
	{Target: ErrInvalidRule, Status: http.StatusUnprocessableEntity, Title: "Invalid Rule"},
	{Target: ErrInvalidAccount, Status: http.StatusUnprocessableEntity, Title: "Invalid Account"},
	{Target: ErrAccountCycle, Status: http.StatusUnprocessableEntity, Title: "Account Hierarchy Cycle"},
	{Target: ErrActorRequired, Status: http.StatusUnprocessableEntity, Title: "Actor Required"},
	{Target: ErrInvalidPeriod, Status: http.StatusUnprocessableEntity, Title: "Invalid Period"},
	{Target: internalshared.ErrInvalidCursor, Status: http.StatusBadRequest, Title: "Invalid Page Token"},
	{Target: ErrUnbalancedEntry, Status: http.StatusInternalServerError, Title: "Unbalanced Entry"},
}
