package domain

import "fmt"

// PlacementKind selects where a moving task lands in its column.
type PlacementKind int

const (
	PlaceBottom PlacementKind = iota
	PlaceTop
	PlaceRelative
	PlaceAt
)

// Placement is the insertion intent of a move.
type Placement struct {
	Kind     PlacementKind
	TargetID int64
	Before   bool
	// Position is the raw slot of a PlaceAt placement.
	Position int
}

// Top places the task at the column head.
func Top() Placement { return Placement{Kind: PlaceTop} }

// Bottom places the task at the column tail.
func Bottom() Placement { return Placement{Kind: PlaceBottom} }

// RelativeTo places the task immediately before or after targetID.
func RelativeTo(targetID int64, before bool) Placement {
	return Placement{Kind: PlaceRelative, TargetID: targetID, Before: before}
}

// At places the task ahead of every task whose position is at or after
// position. Restores use it to return a task to its old slot.
func At(position int) Placement {
	return Placement{Kind: PlaceAt, Position: position}
}

func (p Placement) String() string {
	switch p.Kind {
	case PlaceTop:
		return "top"
	case PlaceAt:
		return fmt.Sprintf("at %d", p.Position)
	case PlaceRelative:
		if p.Before {
			return fmt.Sprintf("before %d", p.TargetID)
		}
		return fmt.Sprintf("after %d", p.TargetID)
	default:
		return "bottom"
	}
}

// MoveOptions is the drop payload sent by the board UI.
type MoveOptions struct {
	TargetTaskID *int64 `json:"targetTaskId,omitempty"`
	PlaceBefore  *bool  `json:"placeBefore,omitempty"`
	ToTop        bool   `json:"toTop,omitempty"`
}

// PlacementFromOptions resolves a drop payload into a Placement. target is
// the task referenced by opts.TargetTaskID, or nil when it is unknown.
//
// Without an explicit side, a drop inside the moving task's own column goes
// after the target when the target sits lower in the column and before it
// otherwise. Drops onto a card of another column insert before that card.
func PlacementFromOptions(opts MoveOptions, moving Task, target *Task) Placement {
	if opts.ToTop {
		return Top()
	}
	if opts.TargetTaskID == nil {
		return Bottom()
	}
	id := *opts.TargetTaskID
	if opts.PlaceBefore != nil {
		return RelativeTo(id, *opts.PlaceBefore)
	}
	if target != nil && target.Status == moving.Status && target.ID != moving.ID {
		return RelativeTo(id, target.Position < moving.Position)
	}
	return RelativeTo(id, true)
}
