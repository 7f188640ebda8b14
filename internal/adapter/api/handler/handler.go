package handler

var (
	messagingHandler *MessagingHandler
	webSocketHandler *WebSocketHandler
	healthHandler    *HealthHandler
	devTokenHandler  *DevTokenHandler
)

func Setup(
	messaging *MessagingHandler,
	webSocket *WebSocketHandler,
	health *HealthHandler,
	devToken *DevTokenHandler,
) {
	messagingHandler = messaging
	webSocketHandler = webSocket
	healthHandler = health
	devTokenHandler = devToken
}

func GetMessagingHandler() *MessagingHandler {
	return messagingHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return webSocketHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}
