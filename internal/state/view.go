package state

// ViewToken enumerates the navigable views named in spec §4.D.
type ViewToken int

const (
	ViewDashboard ViewToken = iota
	ViewBlockDetail
	ViewTxDetail
	ViewTrace
	ViewAddressDetail
)

// InputMode is the current keyboard-input interpretation (spec §4.D).
type InputMode int

const (
	InputNormal InputMode = iota
	InputCommand
	InputSearch
	InputPrompt
)

// viewStack is a strictly push/pop navigation stack (spec §4.D "view
// navigation is strictly push/pop"); it is never empty once the model
// is constructed (spec §8 invariant: "the view stack is non-empty and
// the top view is renderable").
type viewStack struct {
	stack []ViewToken
}

func newViewStack() *viewStack {
	return &viewStack{stack: []ViewToken{ViewDashboard}}
}

func (v *viewStack) Top() ViewToken { return v.stack[len(v.stack)-1] }

func (v *viewStack) Push(t ViewToken) { v.stack = append(v.stack, t) }

// Pop removes the top view unless it is the last remaining one; Esc at
// the dashboard is a no-op rather than emptying the stack.
func (v *viewStack) Pop() {
	if len(v.stack) > 1 {
		v.stack = v.stack[:len(v.stack)-1]
	}
}

func (v *viewStack) Len() int { return len(v.stack) }
