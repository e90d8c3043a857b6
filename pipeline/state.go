package pipeline

import "fmt"

// State 定义问答请求的生命周期状态
type State string

const (
	StateCreated  State = "created"  // Request accepted
	StatePrepared State = "prepared" // Retriever and model handles acquired
	StateAnswered State = "answered" // Answer generated
	StatePackaged State = "packaged" // Response serialized
	StateFailed   State = "failed"   // Terminal failure
)

// validTransitions 定义合法的状态转换。
// FAILED 是终态，任何非终态都可以进入；PACKAGED 之后不再转换。
var validTransitions = map[State][]State{
	StateCreated:  {StatePrepared, StateFailed},
	StatePrepared: {StateAnswered, StateFailed},
	StateAnswered: {StatePackaged, StateFailed},
	StatePackaged: {},
	StateFailed:   {},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 返回状态是否为终态
func IsTerminal(s State) bool {
	return len(validTransitions[s]) == 0
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
