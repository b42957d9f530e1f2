package dice

import "go.uber.org/zap"

// Roll evaluates expr against src.
//
// Precondition: expr came from Parse; src is non-nil.
// Postcondition: len(result.Dice) == expr.Count and every die is in [1, Sides].
func Roll(expr Expression, src Source) RollResult {
	rolled := make([]int, expr.Count)
	for i := range rolled {
		rolled[i] = src.Intn(expr.Sides) + 1
	}
	return RollResult{Expression: expr.Raw, Dice: rolled, Modifier: expr.Modifier}
}

// Roller rolls a fixed expression and logs every result at debug level.
type Roller struct {
	expr   Expression
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller for expr.
//
// Precondition: logger is non-nil.
func NewLoggedRoller(expr Expression, logger *zap.Logger) *Roller {
	return &Roller{expr: expr, logger: logger}
}

// Expression returns the expression rolled by r.
func (r *Roller) Expression() Expression { return r.expr }

// Roll rolls r's expression against src, tagging the log entry with fields.
func (r *Roller) Roll(src Source, fields ...zap.Field) RollResult {
	result := Roll(r.expr, src)
	r.logger.Debug("dice roll", append(fields,
		zap.String("expression", result.Expression),
		zap.Ints("dice", result.Dice),
		zap.Int("modifier", result.Modifier),
		zap.Int("total", result.Total()),
	)...)
	return result
}
