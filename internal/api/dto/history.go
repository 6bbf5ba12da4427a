package dto

import (
	"time"

	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/meterflow/meterflow/internal/validator"
)

type WindowedBalanceHistoryRequest struct {
	From       time.Time        `json:"from" form:"from" validate:"required"`
	To         time.Time        `json:"to" form:"to" validate:"required"`
	WindowSize types.WindowSize `json:"window_size" form:"window_size" validate:"required"`
}

func (r *WindowedBalanceHistoryRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.WindowSize.Validate(); err != nil {
		return err
	}
	if !r.To.After(r.From) {
		return ierr.NewError("history range is empty").
			WithHint("The 'to' timestamp must be after 'from'").
			WithReportableDetails(map[string]interface{}{
				"from": r.From,
				"to":   r.To,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// BalanceHistoryWindow is one fixed-size bucket of the windowed history.
// Windows are half-open [from, to); only windows with non-zero usage are
// emitted. Numeric fields are decimal strings.
type BalanceHistoryWindow struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Usage          string    `json:"usage"`
	BalanceAtStart string    `json:"balanceAtStart"`
	BalanceAtEnd   string    `json:"balanceAtEnd"`
}

// GrantBurnDownHistorySegment is one stretch of the timeline within which the
// grant set and its precedence order are constant. Segments are bounded by
// period resets and by grant activation, expiry and void instants.
type GrantBurnDownHistorySegment struct {
	From                 time.Time         `json:"from"`
	To                   time.Time         `json:"to"`
	BalanceAtStart       string            `json:"balanceAtStart"`
	BalanceAtEnd         string            `json:"balanceAtEnd"`
	GrantBalancesAtStart map[string]string `json:"grantBalancesAtStart"`
	GrantBalancesAtEnd   map[string]string `json:"grantBalancesAtEnd"`
	GrantUsages          map[string]string `json:"grantUsages"`
	Overage              string            `json:"overage"`
}

// WindowedBalanceHistory is the output of the balance history query
type WindowedBalanceHistory struct {
	WindowedHistory []*BalanceHistoryWindow        `json:"windowedHistory"`
	BurndownHistory []*GrantBurnDownHistorySegment `json:"burndownHistory"`
}
