package llm

import "context"

// MockGenerator echoes a canned answer and records the last prompt parts.
// Test helper only.
type MockGenerator struct {
	Answer      string
	Err         error
	LastContext string
	LastQuery   string
	Calls       int
}

func (m *MockGenerator) Generate(ctx context.Context, contextBlock, question string) (string, error) {
	m.Calls++
	m.LastContext = contextBlock
	m.LastQuery = question
	if m.Err != nil {
		return "", m.Err
	}
	if m.Answer == "" {
		return "mock answer", nil
	}
	return m.Answer, nil
}
