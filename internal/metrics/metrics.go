package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ludo_events_total",
			Help: "Inbound events processed, by event name",
		},
		[]string{"event"},
	)
	MalformedPayloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ludo_malformed_payloads_total",
			Help: "Inbound events dropped because the payload did not parse",
		},
	)
	RoomsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ludo_rooms_created_total",
			Help: "Rooms created, by kind (matchmaking or friend)",
		},
		[]string{"kind"},
	)
	GamesSettled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ludo_games_settled_total",
			Help: "Games that reached settlement",
		},
	)
	TurnTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ludo_turn_timeouts_total",
			Help: "Turn timer expiries",
		},
	)
	ActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ludo_active_rooms",
			Help: "Rooms currently in the registry",
		},
	)
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ludo_connected_clients",
			Help: "Websocket clients currently bound to a user",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(MalformedPayloads)
	prometheus.MustRegister(RoomsCreated)
	prometheus.MustRegister(GamesSettled)
	prometheus.MustRegister(TurnTimeouts)
	prometheus.MustRegister(ActiveRooms)
	prometheus.MustRegister(ConnectedClients)
}
