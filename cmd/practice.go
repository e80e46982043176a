/*
Copyright © 2025 Ambor <saltbo@foxmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/eslsoft/chordnet/internal/app"
	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/usecase"
	"github.com/eslsoft/chordnet/internal/usecase/session"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run an interactive practice session on stdin",
	Long: `Presents challenges one at a time. Type the answer and press enter.
Control lines:
  :held KEY...   submit a held-key snapshot, e.g. ":held H t"
  :next          skip the remaining feedback delay
  :quit          end the session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := session.ParseMode(mustString(cmd, "mode"))
		if err != nil {
			return err
		}
		itemType, err := itemTypeFlag(cmd)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")
		dueOnly, _ := cmd.Flags().GetBool("due-only")
		seed, _ := cmd.Flags().GetInt64("seed")
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		container, cleanup, err := initContainer()
		if err != nil {
			return err
		}
		defer cleanup()

		candidates := container.Catalog.All()
		if itemType != entity.ItemTypeUnspecified {
			candidates = container.Catalog.ByItemType(itemType)
		}
		challenges, err := container.Progress.PlanSession(cmd.Context(), usecase.PlanRequest{
			Candidates: candidates,
			Count:      count,
			DueOnly:    dueOnly,
			Rand:       rand.New(rand.NewSource(seed)),
		})
		if err != nil {
			return err
		}
		if len(challenges) == 0 {
			cmd.Println("nothing to practice")
			return nil
		}

		sessCfg, err := app.SessionConfig(container.Config, mode)
		if err != nil {
			return err
		}

		out := &lockedWriter{w: cmd.OutOrStdout()}
		done := make(chan struct{})
		var once sync.Once
		sess, err := session.New(sessCfg, container.Matcher, container.Progress, challenges,
			session.WithLogger(container.Logger),
			session.WithListener(func(e session.Event) {
				printEvent(out, e)
				if e.Type == session.EventFinished {
					once.Do(func() { close(done) })
				}
			}),
		)
		if err != nil {
			return err
		}

		out.Printf("%s session %s: %d challenges\n", mode, sess.ID(), len(challenges))
		if err := sess.Start(cmd.Context()); err != nil {
			return err
		}

		go readInput(cmd.InOrStdin(), sess, out)

		select {
		case <-done:
		case <-cmd.Context().Done():
			sess.Close()
			<-done
		}

		sum := sess.Summary()
		out.Printf("presented %d, correct %d, incorrect %d, timed out %d, ambiguous %d",
			sum.Presented, sum.Correct, sum.Incorrect, sum.TimedOut, sum.Ambiguous)
		if mode == session.ModeSurvival {
			out.Printf(", lives left %d", sum.LivesLeft)
		}
		out.Printf("\n")

		if n, err := container.Progress.Flush(cmd.Context()); err != nil {
			container.Logger.WithError(err).Warn("some progress could not be saved")
		} else if n > 0 {
			container.Logger.Infof("saved %d pending records", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(practiceCmd)

	practiceCmd.Flags().String("mode", "practice", "session mode: practice, timed or survival")
	practiceCmd.Flags().String("type", "", "restrict to an item type: character, two_key_chord or word")
	practiceCmd.Flags().Int("count", 20, "number of challenges")
	practiceCmd.Flags().Bool("due-only", false, "only draw items due for review")
	practiceCmd.Flags().Int64("seed", 0, "random seed, 0 for time based")
}

func readInput(in io.Reader, sess *session.Session, out *lockedWriter) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		var err error
		switch {
		case line == ":quit":
			sess.Close()
			return
		case line == ":next":
			err = sess.Next()
		case strings.HasPrefix(line, ":held"):
			_, err = sess.SubmitHeld(strings.Fields(strings.TrimPrefix(line, ":held")))
		default:
			_, err = sess.Feed(line + " ")
		}
		switch {
		case errors.Is(err, entity.ErrSessionFinished):
			return
		case errors.Is(err, entity.ErrNotAwaitingInput):
			out.Printf("  (wait for the next challenge)\n")
		case err != nil:
			out.Printf("  error: %v\n", err)
		}
	}
	sess.Close()
}

func printEvent(out *lockedWriter, e session.Event) {
	switch e.Type {
	case session.EventPresented:
		out.Printf("[%d] %s\n", e.Index+1, e.Challenge.Prompt())
	case session.EventAmbiguous:
		out.Printf("  ambiguous input %q, try again\n", e.Decision.Input)
	case session.EventScored:
		if e.Decision.Matched {
			out.Printf("  correct (%d ms)", e.Decision.ResponseTimeMs)
		} else {
			out.Printf("  wrong: %q", e.Decision.Input)
		}
		if e.Result != nil {
			out.Printf("  %s, next review %s", e.Result.View.Mastery, relativeTime(e.Result.View.NextReviewDate, time.Now()))
		}
		out.Printf("\n")
	case session.EventRevealed:
		target := e.Challenge.Target()
		answer := string(target.Expected)
		if len(target.ValidOutputs) > 0 {
			answer = strings.Join(target.ValidOutputs, " or ")
		}
		out.Printf("  answer: %s\n", answer)
	case session.EventTimedOut:
		out.Printf("  time is up\n")
	case session.EventFinished:
		out.Printf("session finished\n")
	}
	if e.Err != nil {
		out.Printf("  progress not saved: %v\n", e.Err)
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
