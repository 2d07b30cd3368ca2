package apperr

// 面向用户的提示语
const (
	MsgRetryLater = "Hệ thống đang bận, bạn vui lòng thử lại sau ít phút nhé."
	MsgNotFound   = "Xin lỗi, mình không tìm thấy thông tin bạn yêu cầu."
	MsgInvalid    = "Tin nhắn không hợp lệ, bạn vui lòng kiểm tra lại."
	MsgChatClosed = "Cuộc trò chuyện này đã kết thúc. Bạn vui lòng mở cuộc trò chuyện mới."
	MsgApology    = "Xin lỗi, đã có lỗi xảy ra khi xử lý yêu cầu của bạn. Bạn vui lòng thử lại."
)

// UserMessage 将错误映射为可以展示给用户的文本，不暴露底层细节
func UserMessage(err error) string {
	switch Kind(err) {
	case ErrRateLimited, ErrUpstreamUnavailable:
		return MsgRetryLater
	case ErrNotFound:
		return MsgNotFound
	case ErrInvalidInput:
		return MsgInvalid
	case ErrChatClosed:
		return MsgChatClosed
	default:
		return MsgApology
	}
}
