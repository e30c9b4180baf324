package broadcast

// Outbound event types
const (
	EventDramaStart           = "drama:start"
	EventDramaNewChapter      = "drama:new_chapter"
	EventDramaProgress        = "drama:progress"
	EventDramaEnd             = "drama:end"
	EventDramaChapterInserted = "drama:chapter_inserted"
	EventVoteTrigger          = "vote:trigger"
	EventVoteProgress         = "vote:progress"
	EventVoteResult           = "vote:result"
	EventChatMessage          = "chat:message"
	EventRoomViewerCount      = "room:viewer_count"
	EventPong                 = "pong"
	EventError                = "error"
)

// ViewerCount is the payload of room:viewer_count
type ViewerCount struct {
	Count int `json:"count"`
}
