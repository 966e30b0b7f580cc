package web

import (
	"go.uber.org/zap"
)

// recentSubmissions returns the latest logged submissions, newest first.
// Without a database there is no history to show.
func (s *Server) recentSubmissions(limit int) []SubmissionRow {
	if s.db == nil {
		return nil
	}
	subs, err := s.db.ListSubmissions(limit)
	if err != nil {
		s.logger.Warn("recent submissions", zap.Error(err))
		return nil
	}
	rows := make([]SubmissionRow, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, SubmissionRow{
			ID:        sub.ID,
			User:      sub.User,
			Frontend:  sub.Frontend,
			Test:      sub.Test,
			Files:     baseNames(sub.Files),
			Passed:    sub.Passed,
			CreatedAt: relTime(sub.CreatedAt),
		})
	}
	return rows
}
