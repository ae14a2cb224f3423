// File: cmd/buzzsim/main.go
//
// buzzsim connects a batch of fake buzzers to a running server, registers
// them, and presses the button as soon as a question arrives. Useful for
// exercising the arbitration window without hardware on the bench.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/quizzbox/quizzbox/protocol"
)

// --- Configuration ---
const (
	serverURL = "ws://localhost:3001/subscribe"
	origin    = "http://localhost/"

	// numBuzzers above the server limit is fine; the extras get rejected and
	// that path is worth exercising too.
	numBuzzers = 10

	// maxReaction spreads the buzz presses so some land inside the
	// arbitration window and some outside it.
	maxReaction = 350 * time.Millisecond

	runFor = 2 * time.Minute
)

var (
	registered int32
	rejected   int32
	buzzesSent int32
	buzzesWon  int32
)

func main() {
	fmt.Printf("--- Buzzer Simulator ---\n")
	fmt.Printf("Target: %s\n", serverURL)
	fmt.Printf("Buzzers: %d, reaction spread: %s\n", numBuzzers, maxReaction)

	var wg sync.WaitGroup
	for i := 0; i < numBuzzers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runBuzzer(n)
		}(i)
		// Stagger the connects a little; real devices never arrive at once.
		time.Sleep(50 * time.Millisecond)
	}
	wg.Wait()

	fmt.Println("-----------------------------------------")
	fmt.Printf("Registered: %d\n", atomic.LoadInt32(&registered))
	fmt.Printf("Rejected:   %d\n", atomic.LoadInt32(&rejected))
	fmt.Printf("Buzzes:     %d (won %d)\n", atomic.LoadInt32(&buzzesSent), atomic.LoadInt32(&buzzesWon))
}

func runBuzzer(n int) {
	buzzerID := fmt.Sprintf("SIM-%02d", n)

	ws, err := websocket.Dial(serverURL, "", origin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] dial: %v\n", buzzerID, err)
		return
	}
	defer ws.Close()

	send := func(msgType string, payload interface{}) error {
		env, err := protocol.NewEnvelope(msgType, time.Now().UnixMilli(), payload)
		if err != nil {
			return err
		}
		env.Sender = protocol.SenderBuzzer
		return websocket.JSON.Send(ws, env)
	}

	if err := send(protocol.TypeBuzzerRegister, protocol.BuzzerRegisterPayload{
		BuzzerID:   buzzerID,
		Name:       fmt.Sprintf("Sim %d", n),
		MacAddress: fmt.Sprintf("DE:AD:BE:EF:00:%02X", n),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] register: %v\n", buzzerID, err)
		return
	}

	deadline := time.Now().Add(runFor)
	for time.Now().Before(deadline) {
		var env protocol.Envelope
		if err := websocket.JSON.Receive(ws, &env); err != nil {
			return
		}
		switch env.Type {
		case protocol.TypeConnectionAck:
			atomic.AddInt32(&registered, 1)
		case protocol.TypeConnectionRejected:
			atomic.AddInt32(&rejected, 1)
			return
		case protocol.TypePing:
			var p protocol.PingPayload
			if err := env.DecodePayload(&p); err == nil {
				_ = send(protocol.TypePong, protocol.PongPayload{
					TSend:    p.TSend,
					TReceive: time.Now().UnixMilli(),
				})
			}
		case protocol.TypeQuestionStart:
			var q protocol.QuestionStartPayload
			if err := env.DecodePayload(&q); err != nil {
				continue
			}
			if q.Type != protocol.QuestionTypeBuzzer {
				continue
			}
			time.Sleep(time.Duration(rand.Int63n(int64(maxReaction))))
			now := time.Now().UnixMilli()
			if err := send(protocol.TypeAnswerBuzzer, protocol.AnswerBuzzerPayload{
				GameID:     q.GameID,
				QuestionID: q.ID,
				Timestamps: protocol.Timestamps{Local: now, Synced: now},
			}); err == nil {
				atomic.AddInt32(&buzzesSent, 1)
			}
		case protocol.TypeBuzzerLocked:
			var p protocol.BuzzerLockedPayload
			if err := env.DecodePayload(&p); err == nil && p.WinnerID == buzzerID {
				atomic.AddInt32(&buzzesWon, 1)
				fmt.Printf("[%s] won question %d\n", buzzerID, p.QuestionID)
			}
		}
	}
}
