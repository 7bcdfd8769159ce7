package flowmachine_test

import (
	"context"
	"fmt"
	"log"
	"time"

	flowmachine "github.com/avdept/flowmachine"
	"github.com/avdept/flowmachine/internal/adapters/memory"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/dsl"
)

// printDispatcher writes outbound messages to stdout, standing in for a real
// channel integration (WhatsApp, Instagram, ...).
type printDispatcher struct{}

func (printDispatcher) SendMessage(_ context.Context, _ *domain.ChannelConnection,
	_ *domain.Conversation, text string) error {
	fmt.Println(text)
	return nil
}

func (printDispatcher) SendMedia(_ context.Context, _ *domain.ChannelConnection,
	_ *domain.Conversation, mediaURL, _, _ string) error {
	fmt.Println(mediaURL)
	return nil
}

// ExampleNew demonstrates embedding the engine with a flow declared in Go.
// The first message matches the trigger and suspends on the quick reply; the
// second message resumes the waiting session with the selected option.
func ExampleNew() {
	flow, err := dsl.New("order-bot").
		Node("trig").Trigger(domain.TriggerContains).Value("order").Go("pick").
		Node("pick").QuickReply("What can I get you?", "Pizza", "Sushi").
		On("option-1", "pizza").
		On("option-2", "sushi").
		Node("pizza").Message("Pizza coming right up!").
		Node("sushi").Message("Sushi coming right up!").
		Build()
	if err != nil {
		log.Fatal(err)
	}

	flows := memory.NewFlowProvider()
	flows.Register("acme", flow)

	engine, err := flowmachine.New(flows, flowmachine.WithDispatcher(printDispatcher{}))
	if err != nil {
		log.Fatal(err)
	}

	conversation := &domain.Conversation{ID: "conv-1", CompanyID: "acme", Channel: domain.ChannelWhatsApp, ContactID: "contact-1"}
	contact := &domain.Contact{ID: "contact-1"}
	connection := &domain.ChannelConnection{ID: "conn-1", CompanyID: "acme", Channel: domain.ChannelWhatsApp}

	ctx := context.Background()
	send := func(id, text string) {
		msg := &domain.InboundMessage{
			ID:             id,
			ConversationID: conversation.ID,
			Channel:        domain.ChannelWhatsApp,
			Content:        text,
			ReceivedAt:     time.Now(),
		}
		if err := engine.ProcessMessage(ctx, msg, conversation, contact, connection); err != nil {
			log.Fatal(err)
		}
	}

	send("m-1", "I want to order")
	send("m-2", "1")

	// Output:
	// What can I get you?
	// 1. Pizza
	// 2. Sushi
	// Pizza coming right up!
}
