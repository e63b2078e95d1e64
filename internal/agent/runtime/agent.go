package runtime

import "context"

// Agent is the unit of domain logic hosted by a Runtime. HandleTask is
// invoked one task at a time and must respect ctx cancellation.
type Agent interface {
	Name() string
	Specialties() []string
	Initialize(ctx context.Context) error
	HandleTask(ctx context.Context, task *Task) (*TaskResult, error)
	Cleanup(ctx context.Context) error
}

// InsightReceiver is implemented by agents that can absorb
// high-confidence results produced by related agents.
type InsightReceiver interface {
	ReceiveInsight(ctx context.Context, source string, result *TaskResult) error
}

// TranslationAware is implemented by agents whose prompts adapt to the
// user's reading language.
type TranslationAware interface {
	SetLanguage(lang string)
}
