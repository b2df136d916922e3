package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan UnitCreatedEvent, 1)

	unsub := bus.Subscribe(func(e UnitCreatedEvent) {
		received <- e
	})
	defer unsub()

	event := UnitCreatedEvent{UnitID: 1, PID: 4242, Timestamp: "2025-01-27T10:30:00Z"}
	bus.Publish(event)

	got := <-received
	if got.UnitID != event.UnitID || got.PID != event.PID {
		t.Errorf("Expected %+v, got %+v", event, got)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan AlertEvent, 1)
	received2 := make(chan AlertEvent, 1)

	unsub1 := bus.Subscribe(func(e AlertEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e AlertEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(AlertEvent{Level: LevelWarn, Metric: MetricCPU})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan UnitDestroyedEvent, 1)

	unsub := bus.Subscribe(func(e UnitDestroyedEvent) {
		received <- e
	})

	bus.Publish(UnitDestroyedEvent{UnitID: 1})
	<-received

	unsub()

	bus.Publish(UnitDestroyedEvent{UnitID: 2})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	alertReceived := make(chan bool, 1)
	unitReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ AlertEvent) {
		alertReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ UnitCreatedEvent) {
		unitReceived <- true
	})
	defer unsub2()

	bus.Publish(AlertEvent{Level: LevelDanger})
	<-alertReceived

	select {
	case <-unitReceived:
		t.Fatal("Unit subscriber should NOT have received AlertEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(UnitCreatedEvent{UnitID: 3})
	<-unitReceived

	select {
	case <-alertReceived:
		t.Fatal("Alert subscriber should NOT have received UnitCreatedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ AlertEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(AlertEvent{
					Level:     LevelWarn,
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected a no-op unsubscribe function")
	}
	unsub()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	unsub := SubscribeToChannel[AlertEvent](bus, ch)
	defer unsub()

	bus.Publish(AlertEvent{Level: LevelDanger, Metric: MetricMemory, UnitID: 2})

	select {
	case got := <-ch:
		alert, ok := got.(AlertEvent)
		if !ok || alert.UnitID != 2 {
			t.Errorf("unexpected event %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered to channel")
	}
}

func TestAlertEventJSON(t *testing.T) {
	data, err := json.Marshal(AlertEvent{
		Level:     LevelWarn,
		Metric:    MetricCPU,
		ID:        "POOL_1(PID: 4242)",
		UnitID:    1,
		Value:     79.99,
		Threshold: 50,
	})
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["id"] != "POOL_1(PID: 4242)" || decoded["level"] != "warn" {
		t.Errorf("unexpected JSON: %s", data)
	}
}
