package scoring

import (
	"errors"
	"time"

	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
)

// Engine computes scores from records read through a Store. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	store Store
	rules *RuleTable
	now   func() time.Time
}

// NewEngine creates an engine over store. A nil rule table selects the
// embedded default.
func NewEngine(store Store, rules *RuleTable) *Engine {
	if rules == nil {
		rules = DefaultRuleTable()
	}
	return &Engine{
		store: store,
		rules: rules,
		now:   time.Now,
	}
}

// Rules returns the integration rule table the engine was built with.
func (e *Engine) Rules() *RuleTable {
	return e.rules
}

func storeFailure(operation string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.NewStoreError(operation, err)
}
