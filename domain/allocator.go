package domain

import "fmt"

// AllocatePosition returns the raw position the moving task takes in column
// before the column is renumbered. column must be sorted by position.
//
// Top yields a value below every existing position, Bottom one past the
// highest, and a relative placement the target's own position: the
// renumbering step resolves that collision by ordinal, not by value.
func AllocatePosition(column []Task, movingID int64, p Placement) (int, error) {
	switch p.Kind {
	case PlaceTop:
		top := -1
		for _, t := range column {
			if t.ID == movingID {
				continue
			}
			if t.Position <= top {
				top = t.Position - 1
			}
			break
		}
		return top, nil
	case PlaceRelative:
		if p.TargetID == movingID {
			return 0, fmt.Errorf("task %d cannot be placed relative to itself: %w", movingID, ErrInvalidOperation)
		}
		idx := indexOf(column, p.TargetID)
		if idx < 0 {
			return 0, fmt.Errorf("target task %d: %w", p.TargetID, ErrNotFound)
		}
		return column[idx].Position, nil
	case PlaceAt:
		return p.Position, nil
	default:
		bottom := 0
		for _, t := range column {
			if t.ID == movingID {
				continue
			}
			if t.Position+1 > bottom {
				bottom = t.Position + 1
			}
		}
		return bottom, nil
	}
}
