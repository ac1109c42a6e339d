package lengine

// InputKind distinguishes the local inputs the loop understands.
type InputKind uint8

const (
	_ InputKind = iota

	// InputAction carries an application action.
	InputAction

	// InputQuit ends the loop.
	InputQuit

	// InputResendStart makes the host send the start signal again
	// to every attached client.
	// The start signal travels unreliably,
	// so the operator retries it when a client has not started.
	InputResendStart
)

// Input is one local input event.
type Input[A any] struct {
	Kind   InputKind
	Action A
}

// ActionInput returns an Input carrying a.
func ActionInput[A any](a A) Input[A] {
	return Input[A]{Kind: InputAction, Action: a}
}

// QuitInput returns the quit Input.
func QuitInput[A any]() Input[A] {
	return Input[A]{Kind: InputQuit}
}

// ResendStartInput returns the Input to resend the start signal.
func ResendStartInput[A any]() Input[A] {
	return Input[A]{Kind: InputResendStart}
}
