package cache

import "fmt"

// Key layout shared by every component that reads or writes the cache.
const (
	keyPrefix = "quiz"

	PendingExplanationPattern = keyPrefix + ":explanation:pending:*"
	OverviewPattern           = keyPrefix + ":overview:*"
)

func PendingExplanationKey(studentID string, categoryID uint) string {
	return fmt.Sprintf("%s:explanation:pending:%s:%d", keyPrefix, studentID, categoryID)
}

// PendingExplanationStudentPattern matches every pending bundle of one student.
func PendingExplanationStudentPattern(studentID string) string {
	return fmt.Sprintf("%s:explanation:pending:%s:*", keyPrefix, studentID)
}

func OverviewKey(studentID string) string {
	return fmt.Sprintf("%s:overview:%s", keyPrefix, studentID)
}

func RevokedTokenKey(fingerprint string) string {
	return fmt.Sprintf("%s:auth:revoked:%s", keyPrefix, fingerprint)
}
