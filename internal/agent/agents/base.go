package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
)

const insightWindow = 20

// insightNote is one absorbed high-confidence result from a peer agent.
type insightNote struct {
	Source     string
	Summary    string
	Confidence float64
	ReceivedAt time.Time
}

// baseAgent carries the shared plumbing for the companion's agents:
// executor access, language awareness and absorbed peer insights.
type baseAgent struct {
	name        string
	specialties []string
	exec        *backend.Executor
	logger      *log.Logger

	mu       sync.RWMutex
	language string
	insights []insightNote
}

func newBaseAgent(name string, specialties []string, exec *backend.Executor) baseAgent {
	return baseAgent{
		name:        name,
		specialties: specialties,
		exec:        exec,
		logger:      log.New(log.Writer(), fmt.Sprintf("[%s] ", strings.ToUpper(name)), log.LstdFlags),
	}
}

func (a *baseAgent) Name() string                         { return a.name }
func (a *baseAgent) Specialties() []string                { return a.specialties }
func (a *baseAgent) Initialize(ctx context.Context) error { return nil }
func (a *baseAgent) Cleanup(ctx context.Context) error    { return nil }

// SetLanguage implements runtime.TranslationAware.
func (a *baseAgent) SetLanguage(lang string) {
	a.mu.Lock()
	a.language = lang
	a.mu.Unlock()
}

func (a *baseAgent) currentLanguage() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.language
}

// ReceiveInsight implements runtime.InsightReceiver. The most recent
// notes are kept in a bounded window and fed into later prompts.
func (a *baseAgent) ReceiveInsight(ctx context.Context, source string, result *runtime.TaskResult) error {
	summary := ""
	if result != nil {
		if s, ok := result.Data["answer"].(string); ok {
			summary = s
		} else if s, ok := result.Data["summary"].(string); ok {
			summary = s
		} else {
			summary = fmt.Sprintf("%v", result.Data)
		}
	}
	if len(summary) > 300 {
		summary = summary[:300]
	}

	a.mu.Lock()
	a.insights = append(a.insights, insightNote{
		Source:     source,
		Summary:    summary,
		Confidence: confidenceOf(result),
		ReceivedAt: time.Now(),
	})
	if len(a.insights) > insightWindow {
		a.insights = a.insights[len(a.insights)-insightWindow:]
	}
	a.mu.Unlock()

	a.logger.Printf("absorbed insight from %s", source)
	return nil
}

func confidenceOf(result *runtime.TaskResult) float64 {
	if result == nil {
		return 0
	}
	return result.Confidence
}

// recentInsights renders absorbed notes for prompt context.
func (a *baseAgent) recentInsights(max int) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.insights) == 0 {
		return ""
	}
	var b strings.Builder
	start := len(a.insights) - max
	if start < 0 {
		start = 0
	}
	for _, note := range a.insights[start:] {
		fmt.Fprintf(&b, "- from %s: %s\n", note.Source, note.Summary)
	}
	return b.String()
}

// languageHint prepends a translation instruction when set.
func (a *baseAgent) languageHint() string {
	lang := a.currentLanguage()
	if lang == "" || lang == "en" {
		return ""
	}
	return fmt.Sprintf("Respond in the user's language: %s.\n", lang)
}

// payloadString reads a string field from a task payload.
func payloadString(task *runtime.Task, key string) string {
	if task.Payload == nil {
		return ""
	}
	s, _ := task.Payload[key].(string)
	return s
}

// parseJSON unmarshals a lenient JSON reply into out, tolerating
// surrounding prose from the model.
func parseJSON(text string, out interface{}) error {
	return json.Unmarshal([]byte(extractFirstJSON(text)), out)
}

// extractFirstJSON finds the first top-level JSON object in a string.
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
