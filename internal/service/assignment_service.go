package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// ExplodedIDSeparator joins a course ID and a grade level ID into an exploded view ID.
const ExplodedIDSeparator = "_"

type assignmentCourseReader interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type assignmentGradeLevelReader interface {
	List(ctx context.Context) ([]models.GradeLevel, error)
	FindByID(ctx context.Context, id string) (*models.GradeLevel, error)
}

type assignmentStudentReader interface {
	ListByGradeLevel(ctx context.Context, gradeLevelID string) ([]models.Student, error)
}

// ExplodedID builds the view ID of a course for one grade level.
func ExplodedID(courseID, gradeLevelID string) string {
	return courseID + ExplodedIDSeparator + gradeLevelID
}

// SplitExplodedID splits an exploded view ID on its first separator.
func SplitExplodedID(id string) (courseID, gradeLevelID string, ok bool) {
	courseID, gradeLevelID, found := strings.Cut(id, ExplodedIDSeparator)
	if !found || courseID == "" || gradeLevelID == "" {
		return "", "", false
	}
	return courseID, gradeLevelID, true
}

// ExplodeAssignments expands every course into one view per grade level it covers.
// Grade levels absent from gradeLevels are skipped. Activities are shared verbatim by
// every view of a course; students are restricted to the view's grade level.
func ExplodeAssignments(courses []models.Course, gradeLevels map[string]models.GradeLevel, students []models.Student) []models.ExplodedAssignment {
	byGrade := make(map[string][]models.Student)
	for _, student := range students {
		byGrade[student.GradeLevelID] = append(byGrade[student.GradeLevelID], student)
	}

	views := make([]models.ExplodedAssignment, 0, len(courses))
	for _, course := range courses {
		seen := make(map[string]struct{}, len(course.GradeLevelIDs))
		for _, gradeLevelID := range course.GradeLevelIDs {
			if _, dup := seen[gradeLevelID]; dup {
				continue
			}
			seen[gradeLevelID] = struct{}{}
			level, ok := gradeLevels[gradeLevelID]
			if !ok {
				continue
			}
			view := course
			view.ID = ExplodedID(course.ID, gradeLevelID)
			view.GradeLevelIDs = []string{gradeLevelID}
			view.Students = append([]models.Student{}, byGrade[gradeLevelID]...)
			views = append(views, models.ExplodedAssignment{Course: view, OriginalID: course.ID, GradeLevel: level})
		}
	}
	return views
}

// GroupBySubject groups views under their subject, subjects by name and views in
// educational grade order.
func GroupBySubject(views []models.ExplodedAssignment) []models.SubjectAssignments {
	index := make(map[string]int)
	var groups []models.SubjectAssignments
	for _, view := range views {
		i, ok := index[view.SubjectID]
		if !ok {
			i = len(groups)
			index[view.SubjectID] = i
			groups = append(groups, models.SubjectAssignments{SubjectID: view.SubjectID, SubjectName: view.SubjectName})
		}
		groups[i].Assignments = append(groups[i].Assignments, view)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].SubjectName != groups[j].SubjectName {
			return groups[i].SubjectName < groups[j].SubjectName
		}
		return groups[i].SubjectID < groups[j].SubjectID
	})
	for _, group := range groups {
		assignments := group.Assignments
		sort.SliceStable(assignments, func(i, j int) bool {
			a, b := assignments[i].GradeLevel.Name, assignments[j].GradeLevel.Name
			if a != b {
				return gradeLess(a, b)
			}
			return assignments[i].ID < assignments[j].ID
		})
	}
	return groups
}

// AssignmentService derives per-grade-level course views.
type AssignmentService struct {
	courses     assignmentCourseReader
	gradeLevels assignmentGradeLevelReader
	students    assignmentStudentReader
	cache       *CacheService
	logger      *zap.Logger
}

// NewAssignmentService constructs an AssignmentService. cache may be nil.
func NewAssignmentService(courses assignmentCourseReader, gradeLevels assignmentGradeLevelReader, students assignmentStudentReader, cache *CacheService, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{courses: courses, gradeLevels: gradeLevels, students: students, cache: cache, logger: logger}
}

func teacherCacheKey(teacherID string) string {
	return "courses:teacher:" + teacherID
}

// ListForTeacher returns the teacher's exploded views grouped by subject.
func (s *AssignmentService) ListForTeacher(ctx context.Context, teacherID string) ([]models.SubjectAssignments, error) {
	if strings.TrimSpace(teacherID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	return cached(ctx, s.cache, teacherCacheKey(teacherID), func() ([]models.SubjectAssignments, error) {
		return s.loadForTeacher(ctx, teacherID)
	})
}

func (s *AssignmentService) loadForTeacher(ctx context.Context, teacherID string) ([]models.SubjectAssignments, error) {
	courses, err := s.courses.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load courses")
	}
	levels, err := s.gradeLevels.List(ctx)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load grade levels")
	}
	levelMap := make(map[string]models.GradeLevel, len(levels))
	for _, level := range levels {
		levelMap[level.ID] = level
	}

	needed := make(map[string]struct{})
	for _, course := range courses {
		for _, id := range course.GradeLevelIDs {
			if _, ok := levelMap[id]; ok {
				needed[id] = struct{}{}
			} else {
				s.logger.Warn("course references unknown grade level",
					zap.String("course_id", course.ID), zap.String("grade_level_id", id))
			}
		}
	}
	neededIDs := make([]string, 0, len(needed))
	for id := range needed {
		neededIDs = append(neededIDs, id)
	}
	sort.Strings(neededIDs)
	var students []models.Student
	for _, id := range neededIDs {
		roster, err := s.students.ListByGradeLevel(ctx, id)
		if err != nil {
			return nil, appErrors.Store(err, "failed to load students")
		}
		students = append(students, roster...)
	}

	return GroupBySubject(ExplodeAssignments(courses, levelMap, students)), nil
}

// Resolve re-derives the view identified by an exploded ID.
func (s *AssignmentService) Resolve(ctx context.Context, explodedID string) (*models.ExplodedAssignment, error) {
	courseID, gradeLevelID, ok := SplitExplodedID(explodedID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course view not found")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Store(err, "failed to load course")
	}
	covered := false
	for _, id := range course.GradeLevelIDs {
		if id == gradeLevelID {
			covered = true
			break
		}
	}
	if !covered {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course does not cover this grade level")
	}
	level, err := s.gradeLevels.FindByID(ctx, gradeLevelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade level not found")
		}
		return nil, appErrors.Store(err, "failed to load grade level")
	}
	students, err := s.students.ListByGradeLevel(ctx, gradeLevelID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load students")
	}

	base := *course
	base.GradeLevelIDs = []string{gradeLevelID}
	views := ExplodeAssignments([]models.Course{base}, map[string]models.GradeLevel{level.ID: *level}, students)
	if len(views) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course view not found")
	}
	return &views[0], nil
}

// InvalidateTeacher drops the cached course list of a teacher.
func (s *AssignmentService) InvalidateTeacher(ctx context.Context, teacherID string) {
	_ = s.cache.Invalidate(ctx, teacherCacheKey(teacherID))
}

// InvalidateAll drops every cached course list, used when rosters change.
func (s *AssignmentService) InvalidateAll(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, teacherCacheKey("*"))
}
