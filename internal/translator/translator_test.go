package translator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type mockOracle struct {
	name      string
	raw       bool
	responses []string
	errs      []error
	prompts   []string
}

func (m *mockOracle) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockOracle) RawFragments() bool { return m.raw }

func (m *mockOracle) Generate(ctx context.Context, prompt string) (string, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", nil
}

type countingLimiter struct {
	estimates []int
	err       error
}

func (l *countingLimiter) Admit(ctx context.Context, estimatedTokens int) error {
	if l.err != nil {
		return l.err
	}
	l.estimates = append(l.estimates, estimatedTokens)
	return nil
}

type mapMemory struct {
	entries map[string]string
	stored  int
}

func (m *mapMemory) Lookup(ctx context.Context, fragment, targetLang string) (string, bool, error) {
	v, ok := m.entries[targetLang+"|"+fragment]
	return v, ok, nil
}

func (m *mapMemory) Remember(ctx context.Context, fragment, targetLang, translated string) error {
	if m.entries == nil {
		m.entries = map[string]string{}
	}
	m.entries[targetLang+"|"+fragment] = translated
	m.stored++
	return nil
}

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newInvoker(o *mockOracle, l *countingLimiter, s *recordingSleeper, opts ...Option) *Invoker {
	opts = append([]Option{WithSleeper(s.sleep), WithMaxOutputTokens(6000)}, opts...)
	return New(o, l, "pl", opts...)
}

func TestInvoke_Translated(t *testing.T) {
	o := &mockOracle{responses: []string{"<p>Cześć</p>"}}
	l := &countingLimiter{}
	s := &recordingSleeper{}

	res := newInvoker(o, l, s).Invoke(context.Background(), "", "<p>Hello</p>", "")

	if res.Outcome != Translated || res.Text != "<p>Cześć</p>" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(o.prompts) != 1 || len(l.estimates) != 1 {
		t.Errorf("expected exactly one admitted call, got %d prompts, %d admits", len(o.prompts), len(l.estimates))
	}
	if len(s.waits) != 0 {
		t.Errorf("unexpected backoff %v", s.waits)
	}
}

func TestInvoke_EmptyTwiceFallsBack(t *testing.T) {
	o := &mockOracle{responses: []string{"", "   "}}
	l := &countingLimiter{}
	s := &recordingSleeper{}
	inv := newInvoker(o, l, s, WithEmptyBackoff(15*time.Second))

	chunk := "<p>Hello</p>"
	res := inv.Invoke(context.Background(), "", chunk, "")

	if res.Text != chunk {
		t.Errorf("expected original chunk, got %q", res.Text)
	}
	if res.Outcome != FallbackEmpty || !errors.Is(res.Err, ErrEmptyResponse) {
		t.Errorf("expected empty fallback, got %+v", res)
	}
	if len(o.prompts) != 2 {
		t.Errorf("expected one retry, got %d calls", len(o.prompts))
	}
	if len(l.estimates) != 2 {
		t.Errorf("expected the retry to pass the limiter, got %d admits", len(l.estimates))
	}
	if len(s.waits) != 1 || s.waits[0] != 15*time.Second {
		t.Errorf("expected one 15s backoff, got %v", s.waits)
	}
	if inv.Stats().EmptyFallbacks != 1 {
		t.Errorf("expected one empty fallback in stats, got %+v", inv.Stats())
	}
}

func TestInvoke_EmptyThenText(t *testing.T) {
	o := &mockOracle{responses: []string{"", "<p>Cześć</p>"}}
	l := &countingLimiter{}
	s := &recordingSleeper{}

	res := newInvoker(o, l, s).Invoke(context.Background(), "", "<p>Hello</p>", "")

	if res.Outcome != Translated || res.Text != "<p>Cześć</p>" || res.Requests != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestInvoke_ErrorFallsBackWithoutRetry(t *testing.T) {
	o := &mockOracle{errs: []error{errors.New("quota exceeded")}}
	l := &countingLimiter{}
	s := &recordingSleeper{}

	chunk := "<p>Hello</p>"
	res := newInvoker(o, l, s).Invoke(context.Background(), "", chunk, "")

	if res.Text != chunk || res.Outcome != FallbackError {
		t.Errorf("expected error fallback, got %+v", res)
	}
	if len(o.prompts) != 1 {
		t.Errorf("errors must not be retried, got %d calls", len(o.prompts))
	}
	if len(s.waits) != 0 {
		t.Errorf("unexpected backoff %v", s.waits)
	}
}

func TestInvoke_CleansAndRestoresEdges(t *testing.T) {
	o := &mockOracle{responses: []string{"<think>hmm</think>\n```html\n<p>Cześć</p>\n```"}}
	l := &countingLimiter{}
	s := &recordingSleeper{}

	res := newInvoker(o, l, s).Invoke(context.Background(), "", "\n  <p>Hello</p> ", "")

	if res.Text != "\n  <p>Cześć</p> " {
		t.Errorf("expected cleaned text with original edges, got %q", res.Text)
	}
}

func TestInvoke_ArtifactOnlyCountsAsEmpty(t *testing.T) {
	o := &mockOracle{responses: []string{"<think>nothing</think>", "<think>still</think>"}}
	l := &countingLimiter{}
	s := &recordingSleeper{}

	res := newInvoker(o, l, s).Invoke(context.Background(), "", "<p>x</p>", "")
	if res.Outcome != FallbackEmpty {
		t.Errorf("expected empty fallback, got %v", res.Outcome)
	}
}

func TestInvoke_MemoryHitSkipsOracle(t *testing.T) {
	mem := &mapMemory{entries: map[string]string{"pl|<p>Hello</p>": "<p>Cześć</p>"}}
	o := &mockOracle{}
	l := &countingLimiter{}
	s := &recordingSleeper{}
	inv := newInvoker(o, l, s, WithMemory(mem))

	res := inv.Invoke(context.Background(), "", "<p>Hello</p>", "")

	if res.Outcome != Cached || res.Text != "<p>Cześć</p>" {
		t.Errorf("expected cache hit, got %+v", res)
	}
	if len(o.prompts) != 0 || len(l.estimates) != 0 {
		t.Error("cache hit must not reach the limiter or oracle")
	}
}

func TestInvoke_MemoryStoresOnlyTranslations(t *testing.T) {
	mem := &mapMemory{}
	o := &mockOracle{responses: []string{"<p>Cześć</p>"}, errs: []error{nil, errors.New("boom")}}
	l := &countingLimiter{}
	s := &recordingSleeper{}
	inv := newInvoker(o, l, s, WithMemory(mem))

	ctx := context.Background()
	results := []Result{
		inv.Invoke(ctx, "", "<p>Hello</p>", ""),
		inv.Invoke(ctx, "", "<p>Bye</p>", ""),
	}
	if mem.stored != 0 {
		t.Fatalf("nothing may be stored before Commit, got %d", mem.stored)
	}

	inv.Commit(ctx, results)

	if mem.entries["pl|<p>Hello</p>"] != "<p>Cześć</p>" {
		t.Errorf("translation not stored: %v", mem.entries)
	}
	if mem.stored != 1 {
		t.Errorf("expected only the real translation stored, got %d", mem.stored)
	}
	if _, ok := mem.entries["pl|<p>Bye</p>"]; ok {
		t.Error("fallback text must not be stored")
	}
}

func TestInvoke_Estimate(t *testing.T) {
	o := &mockOracle{responses: []string{"x"}}
	l := &countingLimiter{}
	s := &recordingSleeper{}
	inv := newInvoker(o, l, s)

	inv.Invoke(context.Background(), "", "<p>Hello</p>", "")

	want := len([]rune(o.prompts[0]))/4 + 6000
	if l.estimates[0] != want {
		t.Errorf("expected estimate %d, got %d", want, l.estimates[0])
	}
}

func TestInvoke_PromptContents(t *testing.T) {
	o := &mockOracle{responses: []string{"x"}}
	l := &countingLimiter{}
	s := &recordingSleeper{}
	inv := newInvoker(o, l, s, WithGlossary(map[string]string{"Hobbit": "Hobbit"}))

	inv.Invoke(context.Background(), "It was dark.", "<p>Hello</p>", "Then light.")

	p := o.prompts[0]
	for _, want := range []string{
		"into Polish",
		"<p>Hello</p>",
		"Context before:\nIt was dark.",
		"Context after:\nThen light.",
		"Do NOT add, remove, or change any HTML tags",
		"Hobbit → Hobbit",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestInvoke_RawFragmentBackend(t *testing.T) {
	o := &mockOracle{raw: true, responses: []string{"<p>Cześć</p>"}}
	l := &countingLimiter{}
	s := &recordingSleeper{}

	newInvoker(o, l, s).Invoke(context.Background(), "before", "<p>Hello</p>", "after")

	if o.prompts[0] != "<p>Hello</p>" {
		t.Errorf("expected bare fragment, got %q", o.prompts[0])
	}
}

func TestInvoke_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := &mockOracle{}
	l := &countingLimiter{err: context.Canceled}
	s := &recordingSleeper{}

	res := newInvoker(o, l, s).Invoke(ctx, "", "<p>Hello</p>", "")
	if !errors.Is(res.Err, context.Canceled) || res.Outcome != FallbackError {
		t.Errorf("expected a context error fallback, got %+v", res)
	}
	if res.Text != "<p>Hello</p>" {
		t.Errorf("expected original chunk, got %q", res.Text)
	}
	if len(o.prompts) != 0 {
		t.Error("oracle must not be called after cancellation")
	}
}

func TestInvoke_EmptyRetryPassesLimiter(t *testing.T) {
	o := &mockOracle{responses: []string{"", "<p>Cześć</p>"}}
	l := &countingLimiter{}
	s := &recordingSleeper{}

	res := newInvoker(o, l, s).Invoke(context.Background(), "", "<p>Hello</p>", "")

	if res.Outcome != Translated || res.Requests != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(l.estimates) != 2 || l.estimates[0] != l.estimates[1] {
		t.Errorf("expected both calls admitted with the same estimate, got %v", l.estimates)
	}
}

func TestCommit_SkipsCachedAndFallbacks(t *testing.T) {
	mem := &mapMemory{}
	inv := newInvoker(&mockOracle{}, &countingLimiter{}, &recordingSleeper{}, WithMemory(mem))

	inv.Commit(context.Background(), []Result{
		{Source: "<p>a</p>", Text: "<p>A</p>", Outcome: Cached},
		{Source: "<p>b</p>", Text: "<p>b</p>", Outcome: FallbackEmpty},
		{Source: "<p>c</p>", Text: "<p>c</p>", Outcome: FallbackError},
		{Source: "<p>d</p>", Text: "<p>D</p>", Outcome: Translated},
	})

	if mem.stored != 1 || mem.entries["pl|<p>d</p>"] != "<p>D</p>" {
		t.Errorf("expected only the oracle translation stored, got %v", mem.entries)
	}
}

func TestLanguageName(t *testing.T) {
	tests := map[string]string{
		"pl":     "Polish",
		"de":     "German",
		"polish": "polish",
		"":       "",
	}
	for in, want := range tests {
		if got := LanguageName(in); got != want {
			t.Errorf("LanguageName(%q) = %q, want %q", in, got, want)
		}
	}
}
