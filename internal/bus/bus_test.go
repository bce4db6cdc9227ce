package bus

import "testing"

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	ch := b.Subscribe(TopicHalt)

	b.Publish(TopicHalt, "market halted")

	select {
	case ev := <-ch:
		if ev.Topic != TopicHalt || ev.Payload != "market halted" {
			t.Errorf("event = %+v, unexpected", ev)
		}
	default:
		t.Fatal("expected an event on the subscriber channel")
	}
}

func TestPublishDeliversToEverySubscriberOfATopic(t *testing.T) {
	b := New()
	ch1 := b.Subscribe(TopicResolution)
	ch2 := b.Subscribe(TopicResolution)

	b.Publish(TopicResolution, 42)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Payload != 42 {
				t.Errorf("Payload = %v, want 42", ev.Payload)
			}
		default:
			t.Error("expected every subscriber to receive the event")
		}
	}
}

func TestPublishDoesNotCrossDeliverBetweenTopics(t *testing.T) {
	b := New()
	haltCh := b.Subscribe(TopicHalt)
	calibCh := b.Subscribe(TopicCalibration)

	b.Publish(TopicHalt, "halted")

	select {
	case <-calibCh:
		t.Fatal("calibration subscriber should not receive a halt event")
	default:
	}

	select {
	case <-haltCh:
	default:
		t.Fatal("expected the halt subscriber to receive the event")
	}
}

func TestPublishWithNoSubscribersDoesNotPanic(t *testing.T) {
	b := New()
	b.Publish(TopicHalt, "nobody listening")
}

func TestPublishDropsEventWhenSubscriberBufferIsFull(t *testing.T) {
	b := New()
	ch := b.Subscribe(TopicHalt)

	for i := 0; i < 64; i++ {
		b.Publish(TopicHalt, i)
	}

	drained := 0
drain:
	for {
		select {
		case <-ch:
			drained++
		default:
			break drain
		}
	}
	if drained > 32 {
		t.Errorf("drained %d events, want at most the 32-capacity buffer", drained)
	}
}
