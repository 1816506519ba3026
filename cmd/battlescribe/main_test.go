package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battlescribe/internal/battle"
	"battlescribe/internal/config"
	"battlescribe/internal/oracle"
	"battlescribe/internal/oracle/oracletest"
)

const sampleLog = `Setup
Shinwrld chose tails for the opening coin flip.
gklinsing won the coin toss.

Turn # 1 - gklinsing's Turn
gklinsing drew a card.
gklinsing attached Basic Fire Energy to Charmander in the Active Spot.

Turn # 2 - Shinwrld's Turn
Shinwrld drew a card.
Shinwrld's Squirtle used Water Gun on gklinsing's Charmander for 60 damage.

Shinwrld wins.`

var headerRE = regexp.MustCompile(`Turn # (\d+) - (\w+)'s Turn`)

func sampleSetup() string {
	blocks := strings.Split(sampleLog, "\n\n")
	ex := battle.SetupExtraction{
		Setup: battle.SetupRecord{
			UploadingPlayer: "gklinsing",
			Opponent:        "Shinwrld",
			CoinFlip:        battle.CoinFlip{Caller: "Shinwrld", Called: "tails", Result: "lose"},
			OpeningHands: battle.OpeningHands{
				UploadingPlayer: battle.OpeningHand{Size: 7, Cards: []string{"Charmander"}},
				Opponent:        battle.OpeningHand{Size: 7},
			},
			InitialSetup: battle.InitialSetup{
				UploadingPlayer: battle.Board{Active: "Charmander", Bench: []string{}},
				Opponent:        battle.Board{Active: "Squirtle", Bench: []string{}},
			},
		},
		TurnTexts: blocks[1:3],
		Outcome:   battle.Outcome{Winner: "Shinwrld"},
	}
	data, _ := json.Marshal(ex)
	return string(data)
}

// fakeOracle answers every stage with a valid payload. reflect overrides
// the setup verdict.
func fakeOracle(reflect string) *oracletest.Client {
	return oracletest.New(func(_ context.Context, req oracle.Request) (*oracle.Response, error) {
		switch req.Stage {
		case oracle.StageSetupExtract:
			return oracletest.Raw(sampleSetup()), nil
		case oracle.StageSetupReflect:
			return oracletest.Raw(reflect), nil
		case oracle.StageTurnExtract:
			m := headerRE.FindStringSubmatch(req.User)
			if m == nil {
				return nil, fmt.Errorf("no turn header")
			}
			return oracletest.Raw(fmt.Sprintf(`{"turnNumber": %s, "player": %q, "cardsInHandEndOfTurn": {}, "actions": [{"type": "draw"}], "attacks": [], "prizeCardsTaken": {}, "newActivePokemonAfterKnockout": {}}`, m[1], m[2])), nil
		case oracle.StageTurnJudge:
			return oracletest.Raw(`{"isComplete": true, "missingActions": [], "explanation": "ok"}`), nil
		}
		return nil, fmt.Errorf("unexpected stage %s", req.Stage)
	})
}

// execute runs the root command in a fresh workspace state.
func execute(t *testing.T, ws string, args ...string) (string, error) {
	t.Helper()

	verbose, configPath, workspace, timeout = false, "", "", 0
	uploadingPlayer, outputFormat = "", "summary"
	runsLimit, showAttempts, showJSON, forceInit = 20, false, false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--workspace", ws}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func useOracle(t *testing.T, client oracle.Client) {
	t.Helper()
	orig := newOracle
	newOracle = func(context.Context, *config.Config) (oracle.Client, error) { return client, nil }
	t.Cleanup(func() { newOracle = orig })
}

func TestVersion(t *testing.T) {
	out, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "battlescribe "+config.DefaultConfig().Version)
}

func TestParseAndInspectRuns(t *testing.T) {
	ws := t.TempDir()
	logPath := filepath.Join(ws, "match.txt")
	require.NoError(t, os.WriteFile(logPath, []byte(sampleLog), 0644))

	client := fakeOracle(`{"result": "Pass", "reason": "ok"}`)
	useOracle(t, client)

	out, err := execute(t, ws, "parse", logPath, "--player", "gklinsing", "--format", "json")
	require.NoError(t, err)

	var rec battle.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.True(t, rec.Complete)
	assert.Equal(t, "Shinwrld", rec.Outcome.Winner)
	require.Len(t, rec.Turns, 2)
	assert.Equal(t, "gklinsing", rec.Turns[0].Turn.Player)
	assert.Equal(t, "Shinwrld", rec.Turns[1].Turn.Player)

	records, err := filepath.Glob(filepath.Join(ws, ".battlescribe", "records", "*.json"))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = os.Stat(filepath.Join(ws, ".battlescribe", "usage.json"))
	assert.NoError(t, err, "usage should be saved")

	out, err = execute(t, ws, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "gklinsing")

	runID := strings.TrimSuffix(filepath.Base(records[0]), ".json")
	out, err = execute(t, ws, "runs", "show", runID, "--json", "--attempts")
	require.NoError(t, err)
	assert.Contains(t, out, `"winner": "Shinwrld"`)
	assert.Contains(t, out, "Attempts")
	assert.Contains(t, out, "accepted")

	out, err = execute(t, ws, "runs", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
}

func TestParseFromStdinMarkdown(t *testing.T) {
	ws := t.TempDir()
	useOracle(t, fakeOracle(`{"result": "Pass", "reason": "ok"}`))

	rootCmd.SetIn(strings.NewReader(sampleLog))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	out, err := execute(t, ws, "parse", "-", "--player", "gklinsing", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# gklinsing vs Shinwrld")
	assert.Contains(t, out, "### Turn 2: Shinwrld")
}

func TestParseSetupAborted(t *testing.T) {
	ws := t.TempDir()
	logPath := filepath.Join(ws, "match.txt")
	require.NoError(t, os.WriteFile(logPath, []byte(sampleLog), 0644))

	client := fakeOracle(`{"result": "Fail", "reason": "wrong opponent"}`)
	useOracle(t, client)

	_, err := execute(t, ws, "parse", logPath, "--player", "gklinsing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup aborted")
	assert.Zero(t, client.Count(oracle.StageTurnExtract))

	out, err := execute(t, ws, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "setup_aborted")
}

func TestParseRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, t.TempDir(), "parse", "x.txt", "--player", "p", "--format", "yaml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestRunsListEmpty(t *testing.T) {
	out, err := execute(t, t.TempDir(), "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet.")
}

func TestConfigInitAndShow(t *testing.T) {
	ws := t.TempDir()

	out, err := execute(t, ws, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "config.yaml")

	_, err = execute(t, ws, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	t.Setenv("GEMINI_API_KEY", "secret-key")
	out, err = execute(t, ws, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "secret-key")

	out, err = execute(t, ws, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Config OK")
}

func TestInWorkspace(t *testing.T) {
	assert.Equal(t, "", inWorkspace("/ws", ""))
	assert.Equal(t, "/abs/runs.db", inWorkspace("/ws", "/abs/runs.db"))
	assert.Equal(t, filepath.Join("/ws", ".battlescribe", "runs.db"), inWorkspace("/ws", filepath.Join(".battlescribe", "runs.db")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\nb", 5))
}
