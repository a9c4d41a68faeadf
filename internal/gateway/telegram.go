package gateway

import (
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/taskforge/internal/agent"
	"github.com/rahul/taskforge/internal/store"
	"github.com/rahul/taskforge/internal/workspace"
)

const historyWindow = 40

// HistoryReader is the slice of the memory store the gateway needs.
type HistoryReader interface {
	GetHistory(projectID string, limit int) ([]store.Message, error)
}

// TelegramGateway turns each incoming chat message into a goal submission.
// One chat is one project: its workspace manifest persists across goals for
// the lifetime of the process.
type TelegramGateway struct {
	Bot       *tgbotapi.BotAPI
	Scheduler *agent.Scheduler
	History   HistoryReader

	mu         sync.Mutex
	workspaces map[int64]workspace.Manifest
}

func NewTelegramGateway(token string, scheduler *agent.Scheduler, history HistoryReader) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:        bot,
		Scheduler:  scheduler,
		History:    history,
		workspaces: make(map[int64]workspace.Manifest),
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
		tg.handleGoal(update.Message.Chat.ID, update.Message.Text)
	}
	return nil
}

func (tg *TelegramGateway) handleGoal(chatID int64, goal string) {
	projectID := fmt.Sprintf("%d", chatID)

	var history []store.Message
	if tg.History != nil {
		var err error
		history, err = tg.History.GetHistory(projectID, historyWindow)
		if err != nil {
			log.Printf("Warning: failed to load history for %s: %v", projectID, err)
		}
	}

	tg.mu.Lock()
	files := tg.workspaces[chatID].Clone()
	tg.mu.Unlock()

	results, err := tg.Scheduler.Submit(agent.Invocation{
		Goal:      goal,
		ProjectID: projectID,
		Files:     files,
		History:   history,
	})
	if err != nil {
		tg.Send(projectID, "I can't take that on right now: "+err.Error())
		return
	}

	tg.Send(projectID, "🔧 Working on it...")

	// One goroutine per submission; the scheduler serializes the actual
	// runs, so replies arrive in submission order per chat.
	go func() {
		res := <-results
		if res.Err != nil {
			log.Printf("Error executing goal: %v", res.Err)
			tg.Send(projectID, "Something went wrong: "+res.Err.Error())
			return
		}

		tg.mu.Lock()
		tg.workspaces[chatID] = res.Outcome.Files
		tg.mu.Unlock()

		tg.Send(projectID, renderOutcome(res.Outcome))
	}()
}

func renderOutcome(o *agent.Outcome) string {
	var b strings.Builder

	icon := "✅"
	if !o.State.OverallSuccess {
		icon = "⚠️"
	}
	fmt.Fprintf(&b, "%s *Run finished*: %d completed, %d failed, %d skipped\n",
		icon, len(o.State.CompletedSteps), len(o.State.FailedSteps), len(o.State.SkippedSteps))
	fmt.Fprintf(&b, "Completeness: %d%%\n", o.Verification.Completeness)

	if len(o.Files.Files) > 0 {
		b.WriteString("\n*Files:*\n")
		for _, f := range o.Files.Files {
			fmt.Fprintf(&b, "- `%s` (%d bytes)\n", f.Path, len(f.Content))
		}
	}
	if len(o.ToolOutputs.Packages) > 0 {
		fmt.Fprintf(&b, "\n*Packages:* %s\n", strings.Join(o.ToolOutputs.Packages, ", "))
	}
	if len(o.Verification.Gaps) > 0 {
		b.WriteString("\n*Gaps:*\n")
		for _, g := range o.Verification.Gaps {
			b.WriteString("- " + g + "\n")
		}
	}
	for _, s := range o.Verification.Suggestions {
		b.WriteString("💡 " + s + "\n")
	}
	return b.String()
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id := 0
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(int64(id), text)
	msg.ParseMode = "Markdown" // Enable markdown for better alerts
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
