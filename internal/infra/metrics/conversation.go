package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		messagesHandledTotal,
		forgetOperationsTotal,
		empathyLevel,
		chatsCreatedTotal,
	)
}

var (
	messagesHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_messages_total",
			Help:      "User messages answered, by reply category and detected emotion.",
		},
		[]string{"category", "emotion"},
	)

	forgetOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_forget_total",
			Help:      "Forget protocol outcomes.",
		},
		[]string{"outcome"}, // forgotten | not_found | ask_target | already | recalled
	)

	empathyLevel = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_empathy_level",
			Help:      "Empathy level in effect when a reply was produced.",
			Buckets:   []float64{10, 20, 30, 35, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	chatsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_chats_created_total",
			Help:      "Chats opened, explicitly or implicitly on the first message.",
		},
		[]string{"how"}, // explicit | implicit
	)
)

func IncMessageHandled(category, emotion string) {
	messagesHandledTotal.WithLabelValues(norm(category), norm(emotion)).Inc()
}

func IncForget(outcome string) {
	forgetOperationsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveEmpathy(level int) {
	empathyLevel.Observe(float64(level))
}

func IncChatCreated(how string) {
	chatsCreatedTotal.WithLabelValues(norm(how)).Inc()
}
