package envelope

import "testing"

// LowerHashParamsForTest lowers the argon2 params to speed up tests.
// It should only be called from tests. It uses t.Cleanup to restore the
// original values.
func LowerHashParamsForTest(t *testing.T) {
	t.Helper()
	original := getHashConfig()
	setHashConfig(TestHashConfig())
	t.Cleanup(func() {
		setHashConfig(original)
	})
}
