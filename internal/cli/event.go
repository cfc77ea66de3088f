package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewEventCmd создаёт группу команд для работы с событиями и подписками.
func NewEventCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Управление событиями и подписками",
	}

	cmd.AddCommand(
		newEventListCmd(clientFn, outputFn),
		newEventPublishCmd(clientFn, outputFn),
		newEventSubscriptionsCmd(clientFn, outputFn),
		newEventSubscribeCmd(clientFn, outputFn),
		newEventUnsubscribeCmd(clientFn, outputFn),
	)

	return cmd
}

func newEventListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var topic string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список событий",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := clientFn().ListEvents(topic, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TOPIC", "STATUS", "OCCURRENCE"}
			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{e.ID, e.Topic, e.Status, e.Occurrence})
			}

			return outputFn().Print(headers, rows, events)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "фильтр по теме")
	cmd.Flags().IntVar(&limit, "limit", 50, "максимум записей")

	return cmd
}

func newEventPublishCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var aspects []string

	cmd := &cobra.Command{
		Use:   "publish <topic>",
		Short: "Опубликовать событие",
		Long: `Публикует событие с указанной темой. Аспекты задаются флагом
--aspect key=value, флаг можно повторять.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAspects(aspects)
			if err != nil {
				return err
			}

			event, err := clientFn().PublishEvent(PublishEventRequest{
				Topic:   args[0],
				Aspects: parsed,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success("Event published: %s", event.ID)
			return out.Print(
				[]string{"ID", "TOPIC", "STATUS", "OCCURRENCE"},
				[][]string{{event.ID, event.Topic, event.Status, event.Occurrence}},
				event,
			)
		},
	}

	cmd.Flags().StringArrayVar(&aspects, "aspect", nil, "аспект события в форме key=value")

	return cmd
}

func newEventSubscriptionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Список подписок",
		RunE: func(cmd *cobra.Command, args []string) error {
			subscriptions, err := clientFn().ListSubscriptions(topic)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TAG", "TOPIC", "ACTIVATIONS", "LIMIT"}
			rows := make([][]string, 0, len(subscriptions))
			for _, s := range subscriptions {
				limit := "-"
				if s.ActivationLimit != nil {
					limit = strconv.Itoa(*s.ActivationLimit)
				}
				rows = append(rows, []string{
					s.ID, s.Tag, s.Topic, strconv.Itoa(s.Activations), limit,
				})
			}

			return outputFn().Print(headers, rows, subscriptions)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "фильтр по теме")

	return cmd
}

func newEventSubscribeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		tag             string
		topic           string
		aspects         []string
		activationLimit int
		actionJSON      string
	)

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Создать подписку на события",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" || topic == "" || actionJSON == "" {
				return fmt.Errorf("--tag, --topic and --action are required")
			}

			var action map[string]any
			if err := json.Unmarshal([]byte(actionJSON), &action); err != nil {
				return fmt.Errorf("invalid --action JSON: %w", err)
			}

			parsed, err := parseAspects(aspects)
			if err != nil {
				return err
			}

			req := CreateSubscriptionRequest{
				Tag:     tag,
				Action:  action,
				Topic:   topic,
				Aspects: parsed,
			}
			if activationLimit > 0 {
				req.ActivationLimit = &activationLimit
			}

			subscription, err := clientFn().CreateSubscription(req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success("Subscription created: %s", subscription.ID)
			return out.Print(
				[]string{"ID", "TAG", "TOPIC"},
				[][]string{{subscription.ID, subscription.Tag, subscription.Topic}},
				subscription,
			)
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "тег подписки (обязательно)")
	cmd.Flags().StringVar(&topic, "topic", "", "тема событий (обязательно)")
	cmd.Flags().StringArrayVar(&aspects, "aspect", nil, "требуемый аспект в форме key=value")
	cmd.Flags().IntVar(&activationLimit, "activation-limit", 0, "максимум активаций, 0 без ограничения")
	cmd.Flags().StringVar(&actionJSON, "action", "", "JSON-описание действия (обязательно)")

	return cmd
}

func newEventUnsubscribeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <id>",
		Short: "Удалить подписку",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteSubscription(args[0]); err != nil {
				return err
			}
			outputFn().Success("Subscription deleted: %s", args[0])
			return nil
		},
	}
}

// parseAspects разбирает аргументы вида key=value в карту аспектов.
func parseAspects(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	aspects := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid aspect %q, expected key=value", pair)
		}
		aspects[key] = value
	}
	return aspects, nil
}
