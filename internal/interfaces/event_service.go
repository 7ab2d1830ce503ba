package interfaces

// Event types broadcast to observers. Payload field names are part of the
// wire contract consumed by the web UI.
const (
	EventTestInputMode        = "test_input_mode"
	EventPromptHistory        = "prompt_history"
	EventQueueUpdate          = "queue_update"
	EventContractAddress      = "contract_address"
	EventProjectDescription   = "project_description"
	EventMarketCapUpdate      = "marketCapUpdate"
	EventNewTrade             = "newTrade"
	EventRequestQueued        = "request_queued"
	EventRequestStarted       = "request_started"
	EventRequestCompleted     = "request_completed"
	EventPromptAdded          = "prompt_added"
	EventModelStart           = "model_start"
	EventModelResponse        = "model_response"
	EventModelError           = "model_error"
	EventGeneratedFileURL     = "generated_file_url"
	EventAILog                = "ai_log"
	EventAILogCountdownStart  = "ai_log_countdown_start"
	EventAILogCountdownUpdate = "ai_log_countdown_update"
	EventCountdownUpdate      = "countdown_update"
	EventAIError              = "ai_error"
)

// Inbound message types sent by observers
const (
	MessageGenerateCode = "generate_code"
)

// EventBroadcaster fans an event out to every connected observer
type EventBroadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// ClientSink delivers events to a single observer.
// A nil ClientSink means the submitter has no reply channel.
type ClientSink interface {
	Send(eventType string, payload interface{}) error
}
