package cmd

import (
	"fmt"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	clientURLFlag  string
	clientTextFlag string

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "Exercise a running agent's JSON-RPC endpoint",
		Long:  `Run RPC operations against a running task engine agent`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	smokeCmd = &cobra.Command{
		Use:   "smoke",
		Short: "Send a task, poll it to completion, then cancel a second one",
		Long:  `Exercises tasks/send, tasks/get, and tasks/cancel end to end against a running agent, printing each response.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmoke()
		},
	}

	streamCmd = &cobra.Command{
		Use:   "stream",
		Short: "Send a task via tasks/sendSubscribe and print every streamed event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream()
		},
	}
)

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(smokeCmd, streamCmd)

	clientCmd.PersistentFlags().StringVarP(&clientURLFlag, "url", "u", "http://localhost:3210", "base URL of the agent to talk to")
	clientCmd.PersistentFlags().StringVarP(&clientTextFlag, "text", "t", "hello from the client", "message text to send")
}

func runSmoke() error {
	client := a2a.NewClient(clientURLFlag)

	fmt.Println("== tasks/send ==")
	task, err := client.SendTask(a2a.TaskSendParams{
		ID:      uuid.NewString(),
		Message: *a2a.NewTextMessage("user", clientTextFlag),
	})
	if err != nil {
		log.Error("tasks/send failed", "err", err)
		return err
	}
	fmt.Println(task.String())

	fmt.Println("== tasks/get (polling to a terminal state) ==")
	for i := 0; i < 25; i++ {
		got, err := client.GetTask(a2a.TaskQueryParams{TaskIDParams: a2a.TaskIDParams{ID: task.ID}})
		if err != nil {
			log.Error("tasks/get failed", "err", err)
			return err
		}
		if got.IsTerminal() {
			fmt.Println(got.String())
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("== tasks/send + tasks/cancel ==")
	toCancel, err := client.SendTask(a2a.TaskSendParams{
		ID:      uuid.NewString(),
		Message: *a2a.NewTextMessage("user", clientTextFlag),
		Metadata: map[string]any{
			"a2a.processor": "twostage",
		},
	})
	if err != nil {
		log.Error("tasks/send failed", "err", err)
		return err
	}

	canceled, err := client.CancelTask(a2a.TaskIDParams{ID: toCancel.ID})
	if err != nil {
		log.Error("tasks/cancel failed", "err", err)
		return err
	}
	fmt.Println(canceled.String())

	return nil
}

func runStream() error {
	client := a2a.NewClient(clientURLFlag)
	events := make(chan a2a.Event)

	go func() {
		for evt := range events {
			fmt.Printf("event: kind=%s final=%v\n", evt.Kind, evt.Final)
		}
	}()

	err := client.SendTaskStreaming(a2a.TaskSendParams{
		ID:      uuid.NewString(),
		Message: *a2a.NewTextMessage("user", clientTextFlag),
		Metadata: map[string]any{
			"a2a.processor": "counter",
		},
	}, events)
	close(events)
	return err
}
