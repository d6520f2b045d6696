package realtime

// Inbound intents. Every intent receives a synchronous ack on the same
// connection under the same event name, shaped {success: true, ...} or
// {success: false, error}.
const (
	IntentCreateSession = "create_session"
	IntentJoinSession   = "join_session"
	IntentStartPoll     = "start_poll"
	IntentSubmitAnswer  = "submit_answer"
	IntentRemoveStudent = "remove_student"
	IntentGetSession    = "get_session"
)

// Outbound notifications.
const (
	EventStudentJoined  = "student_joined"  // coordinator: roster after a join
	EventStudentLeft    = "student_left"    // coordinator: roster after a voluntary leave
	EventStudentRemoved = "student_removed" // coordinator: roster after an eviction
	EventRemoved        = "removed"         // the evicted student, just before its connection drops
	EventPollActive     = "poll_active"     // students: question, options, remaining time; never vote counts
	EventPollCreated    = "poll_created"    // coordinator: zero-vote results view for a started poll
	EventPollUpdate     = "poll_update"     // coordinator: results view after each accepted vote
	EventPollResults    = "poll_results"    // all members: final snapshot, both closure triggers
	EventSessionEnded   = "session_ended"   // students: coordinator is gone, session no longer exists
)
