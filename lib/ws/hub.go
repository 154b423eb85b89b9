package ws

import "sync"

// Hub maintains the set of active Clients and broadcasts server-wide messages
// to them. Per-session frames do not pass through the Hub; they flow over each
// client's subscription channel.
type Hub struct {
	// Registered Clients.
	Clients        map[*Client]bool
	ClientsRWMutex sync.RWMutex

	// Outbound messages for every connected client.
	Broadcast chan []byte

	// Register requests from the Clients.
	Register chan *Client

	// Unregister requests from Clients.
	Unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		Broadcast:  make(chan []byte),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Clients:    make(map[*Client]bool),
	}
}

// ClientCount reports how many sockets are currently connected.
func (h *Hub) ClientCount() int {
	h.ClientsRWMutex.RLock()
	defer h.ClientsRWMutex.RUnlock()
	return len(h.Clients)
}

// Run owns the client set. A client's Send channel is never closed; shutdown
// is signalled through the client's done channel so the frame bridge can keep
// writing safely until it observes the signal.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			if client == nil {
				continue
			}
			h.ClientsRWMutex.Lock()
			h.Clients[client] = true
			h.ClientsRWMutex.Unlock()
		case client := <-h.Unregister:
			if client == nil {
				continue
			}
			h.ClientsRWMutex.Lock()
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				client.shutdown()
			}
			h.ClientsRWMutex.Unlock()
		case message := <-h.Broadcast:
			h.ClientsRWMutex.Lock()
			for client := range h.Clients {
				if client == nil {
					continue
				}
				select {
				case client.Send <- message:
				default:
					println("Removing client due to full channel")
					delete(h.Clients, client)
					client.shutdown()
				}
			}
			h.ClientsRWMutex.Unlock()
		}
	}
}
