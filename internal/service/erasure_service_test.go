package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEraser struct {
	courseCalls []int64
	userCalls   map[int64][]int64
	affected    int64
}

func (m *mockEraser) DeleteByCourse(ctx context.Context, courseID int64) (int64, error) {
	m.courseCalls = append(m.courseCalls, courseID)
	return m.affected, nil
}

func (m *mockEraser) DeleteByCourseUsers(ctx context.Context, courseID int64, userIDs []int64) (int64, error) {
	if m.userCalls == nil {
		m.userCalls = make(map[int64][]int64)
	}
	m.userCalls[courseID] = userIDs
	return m.affected, nil
}

type mockInvalidator struct {
	invalidated int
}

func (m *mockInvalidator) Invalidate(ctx context.Context) {
	m.invalidated++
}

func TestErasureEraseCourse(t *testing.T) {
	eraser := &mockEraser{affected: 4}
	reports := &mockInvalidator{}
	svc := NewErasureService(eraser, reports, nil, nil)

	affected, err := svc.EraseCourse(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)
	assert.Equal(t, []int64{2}, eraser.courseCalls)
	assert.Equal(t, 1, reports.invalidated)

	_, err = svc.EraseCourse(context.Background(), 0)
	require.Error(t, err)
}

func TestErasureEraseCourseUsers(t *testing.T) {
	eraser := &mockEraser{affected: 2}
	svc := NewErasureService(eraser, nil, nil, nil)

	affected, err := svc.EraseCourseUsers(context.Background(), 2, EraseUsersRequest{UserIDs: []int64{3, 4}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.Equal(t, []int64{3, 4}, eraser.userCalls[2])
}

func TestErasureEraseCourseUsersRejectsEmptyList(t *testing.T) {
	svc := NewErasureService(&mockEraser{}, nil, nil, nil)

	_, err := svc.EraseCourseUsers(context.Background(), 2, EraseUsersRequest{})
	require.Error(t, err)

	_, err = svc.EraseCourseUsers(context.Background(), 2, EraseUsersRequest{UserIDs: []int64{0}})
	require.Error(t, err)
}
