package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubClient(hub *Hub, sessionID string, authorID string, buffer int) *Client {
	return &Client{
		Hub:       hub,
		Conn:      NewMockWebSocketConn(),
		Send:      make(chan []byte, buffer),
		SessionID: sessionID,
		AuthorID:  authorID,
		done:      make(chan struct{}),
	}
}

func isShutDown(c *Client) bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	require.NotNil(t, hub)
	assert.NotNil(t, hub.Clients)
	assert.NotNil(t, hub.Broadcast)
	assert.NotNil(t, hub.Register)
	assert.NotNil(t, hub.Unregister)
	assert.Empty(t, hub.Clients)
}

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub()
	client := newHubClient(hub, "session123", "author1", 256)

	go hub.Run()
	defer func() {
		close(hub.Register)
		close(hub.Unregister)
		close(hub.Broadcast)
	}()

	hub.Register <- client

	time.Sleep(10 * time.Millisecond)

	assert.Contains(t, hub.Clients, client)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_UnregisterClient(t *testing.T) {
	hub := NewHub()
	client := newHubClient(hub, "session123", "author1", 256)

	go hub.Run()
	defer func() {
		close(hub.Register)
		close(hub.Unregister)
		close(hub.Broadcast)
	}()

	hub.Register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Unregister <- client
	time.Sleep(10 * time.Millisecond)

	assert.NotContains(t, hub.Clients, client)
	assert.Equal(t, 0, hub.ClientCount())
	assert.True(t, isShutDown(client), "done channel should be closed")
}

func TestHub_BroadcastMessage(t *testing.T) {
	hub := NewHub()

	client1 := newHubClient(hub, "session1", "author1", 256)
	client2 := newHubClient(hub, "session2", "author2", 256)

	go hub.Run()
	defer func() {
		close(hub.Register)
		close(hub.Unregister)
		close(hub.Broadcast)
	}()

	hub.Register <- client1
	hub.Register <- client2
	time.Sleep(10 * time.Millisecond)

	testMessage := []byte(`{"type":"test","data":"hello"}`)
	hub.Broadcast <- testMessage
	time.Sleep(10 * time.Millisecond)

	select {
	case msg := <-client1.Send:
		assert.Equal(t, testMessage, msg)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Client1 did not receive message")
	}

	select {
	case msg := <-client2.Send:
		assert.Equal(t, testMessage, msg)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Client2 did not receive message")
	}
}

func TestHub_BroadcastToFullChannel(t *testing.T) {
	hub := NewHub()

	client := newHubClient(hub, "session1", "author1", 1)

	go hub.Run()
	defer func() {
		close(hub.Register)
		close(hub.Unregister)
		close(hub.Broadcast)
	}()

	hub.Register <- client
	time.Sleep(10 * time.Millisecond)

	client.Send <- []byte("first message")

	hub.Broadcast <- []byte("second message that causes overflow")
	time.Sleep(50 * time.Millisecond)

	assert.NotContains(t, hub.Clients, client)
	assert.True(t, isShutDown(client), "overflowing client should be shut down")
}

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub()

	go hub.Run()
	defer func() {
		close(hub.Register)
		close(hub.Unregister)
		close(hub.Broadcast)
	}()

	const numClients = 10
	const numMessages = 5

	var wg sync.WaitGroup
	clients := make([]*Client, numClients)

	wg.Add(numClients)
	for i := 0; i < numClients; i++ {
		go func(index int) {
			defer wg.Done()
			clients[index] = newHubClient(hub, "session"+string(rune('0'+index)), "author", 256)
			hub.Register <- clients[index]
		}(i)
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	wg.Add(numMessages)
	for i := 0; i < numMessages; i++ {
		go func(msgIndex int) {
			defer wg.Done()
			message := []byte(`{"type":"test","msg":"` + string(rune('0'+msgIndex)) + `"}`)
			hub.Broadcast <- message
		}(i)
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	for i, client := range clients {
		if client == nil {
			continue
		}

		receivedCount := 0
		timeout := time.After(100 * time.Millisecond)

	messageLoop:
		for {
			select {
			case <-client.Send:
				receivedCount++
				if receivedCount >= numMessages {
					break messageLoop
				}
			case <-timeout:
				break messageLoop
			}
		}

		assert.Equal(t, numMessages, receivedCount, "Client %d should receive all messages", i)
	}
}
