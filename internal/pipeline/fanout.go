package pipeline

// WorkItem is one turn stage instance before it starts.
type WorkItem struct {
	Index           int // position in the transcript, 0-based
	Text            string
	Attempt         int
	UploadingPlayer string // read-only context shared by every item
}

// FanOut turns the ordered turn texts into work items in index order.
func FanOut(segments []string, uploadingPlayer string) []WorkItem {
	items := make([]WorkItem, len(segments))
	for i, text := range segments {
		items[i] = WorkItem{
			Index:           i,
			Text:            text,
			Attempt:         1,
			UploadingPlayer: uploadingPlayer,
		}
	}
	return items
}
