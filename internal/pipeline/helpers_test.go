package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"battlescribe/internal/battle"
	"battlescribe/internal/oracle"
	"battlescribe/internal/oracle/oracletest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	uploader = "gklinsing"
	opponent = "Shinwrld"
)

var turnHeader = regexp.MustCompile(`Turn # (\d+) -`)

// turnPlayer alternates players starting with the opponent.
func turnPlayer(n int) string {
	if n%2 == 1 {
		return opponent
	}
	return uploader
}

func turnText(n int) string {
	p := turnPlayer(n)
	return fmt.Sprintf("Turn # %d - %s's Turn\n%s drew a card.\n%s played Nest Ball.", n, p, p, p)
}

func turnTexts(count int) []string {
	out := make([]string, count)
	for i := range out {
		out[i] = turnText(i + 1)
	}
	return out
}

func transcriptFor(texts []string) battle.RawTranscript {
	var b strings.Builder
	b.WriteString("Setup\nShinwrld chose tails for the opening coin flip.\ngklinsing won the coin toss.\n\n")
	b.WriteString(strings.Join(texts, "\n\n"))
	b.WriteString("\n\nShinwrld wins.")
	return battle.RawTranscript(b.String())
}

func setupJSON(texts []string) string {
	ex := battle.SetupExtraction{
		Setup: battle.SetupRecord{
			UploadingPlayer: uploader,
			Opponent:        opponent,
			CoinFlip:        battle.CoinFlip{Caller: opponent, Called: "tails", Result: "lose"},
			OpeningHands: battle.OpeningHands{
				UploadingPlayer: battle.OpeningHand{Size: 7, Cards: []string{"Charmander", "Nest Ball"}},
				Opponent:        battle.OpeningHand{Size: 7},
			},
			InitialSetup: battle.InitialSetup{
				UploadingPlayer: battle.Board{Active: "Charmander", Bench: []string{}},
				Opponent:        battle.Board{Active: "Squirtle", Bench: []string{}},
			},
		},
		TurnTexts: texts,
		Outcome:   battle.Outcome{Winner: opponent},
	}
	data, err := json.Marshal(ex)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func turnJSON(n int) string {
	p := turnPlayer(n)
	return fmt.Sprintf(`{
  "turnNumber": %d,
  "player": %q,
  "cardsInHandEndOfTurn": {%q: 6},
  "actions": [{"type": "draw"}, {"type": "play", "cardOrAction": "Nest Ball", "cardType": "trainer"}],
  "attacks": [],
  "prizeCardsTaken": {},
  "newActivePokemonAfterKnockout": {}
}`, n, p, p)
}

const (
	verdictComplete   = `{"isComplete": true, "missingActions": [], "explanation": "every action is present"}`
	verdictIncomplete = `{"isComplete": false, "missingActions": ["Nest Ball play"], "explanation": "the Nest Ball is not in the JSON"}`
	reflectPass       = `{"result": "Pass", "reason": "setup matches the log"}`
	reflectFail       = `{"result": "Fail", "reason": "opening hand size is wrong"}`
)

// battleOracle scripts a whole run. Each hook gets the 1-based turn number
// (0 for setup calls) and the 1-based call count for that turn and stage.
// A nil hook answers with a valid payload.
type battleOracle struct {
	texts []string

	setup   func(attempt int) (*oracle.Response, error)
	reflect func(attempt int) (*oracle.Response, error)
	extract func(ctx context.Context, n, attempt int) (*oracle.Response, error)
	judge   func(n, attempt int) (*oracle.Response, error)

	mu       sync.Mutex
	counts   map[string]int
	accepted []int // turn numbers in the order their judge call returned complete
	inflight int
	peak     int
}

func newBattleOracle(turns int) *battleOracle {
	return &battleOracle{texts: turnTexts(turns), counts: make(map[string]int)}
}

func (b *battleOracle) bump(stage string, n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := stage + "#" + strconv.Itoa(n)
	b.counts[key]++
	return b.counts[key]
}

// calls returns how many times stage was called for turn n.
func (b *battleOracle) calls(stage string, n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[stage+"#"+strconv.Itoa(n)]
}

func turnNumber(t *testing.T, user string) int {
	m := turnHeader.FindStringSubmatch(user)
	if m == nil {
		t.Errorf("no turn header in %q", user)
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func (b *battleOracle) client(t *testing.T) *oracletest.Client {
	return oracletest.New(func(ctx context.Context, req oracle.Request) (*oracle.Response, error) {
		switch req.Stage {
		case oracle.StageSetupExtract:
			attempt := b.bump(req.Stage, 0)
			if b.setup != nil {
				return b.setup(attempt)
			}
			return oracletest.Raw(setupJSON(b.texts)), nil

		case oracle.StageSetupReflect:
			attempt := b.bump(req.Stage, 0)
			if b.reflect != nil {
				return b.reflect(attempt)
			}
			return oracletest.Raw(reflectPass), nil

		case oracle.StageTurnExtract:
			n := turnNumber(t, req.User)
			attempt := b.bump(req.Stage, n)

			b.mu.Lock()
			b.inflight++
			if b.inflight > b.peak {
				b.peak = b.inflight
			}
			b.mu.Unlock()
			defer func() {
				b.mu.Lock()
				b.inflight--
				b.mu.Unlock()
			}()

			if b.extract != nil {
				return b.extract(ctx, n, attempt)
			}
			return oracletest.Raw(turnJSON(n)), nil

		case oracle.StageTurnJudge:
			n := turnNumber(t, req.User)
			attempt := b.bump(req.Stage, n)
			resp := oracletest.Raw(verdictComplete)
			var err error
			if b.judge != nil {
				resp, err = b.judge(n, attempt)
			}
			if err == nil && strings.Contains(string(resp.Content), `"isComplete": true`) {
				b.mu.Lock()
				b.accepted = append(b.accepted, n)
				b.mu.Unlock()
			}
			return resp, err
		}
		return nil, fmt.Errorf("unexpected stage %q", req.Stage)
	})
}

// recordingSleeper records backoff delays without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BackoffUnit = time.Second
	opts.Workers = 4
	return opts
}

func newTestPipeline(t *testing.T, client oracle.Client, opts Options, extra ...Option) (*Pipeline, *recordingSleeper) {
	t.Helper()
	sleeper := &recordingSleeper{}
	p, err := New(client, opts, append([]Option{WithSleeper(sleeper)}, extra...)...)
	require.NoError(t, err)
	return p, sleeper
}

func attemptsFor(attempts []battle.Attempt, index int) []battle.Attempt {
	var out []battle.Attempt
	for _, a := range attempts {
		if a.Index == index {
			out = append(out, a)
		}
	}
	return out
}
