package core

import (
	"context"
	"sort"
	"strings"

	"orgdirectory/pkg/domain"
)

// CreateActivity adds an activity as a root or under an existing parent.
// Checks run in order: name present, parent exists, sibling name free, parent
// not already at the deepest level.
func (s *Service) CreateActivity(ctx context.Context, in ActivityInput) (Activity, Result, error) {
	var created Activity
	var res Result
	err := s.run(ctx, "create_activity", func(ctx context.Context) (int64, error) {
		var err error
		res, err = s.write(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			name := strings.TrimSpace(in.Name)
			if err := domain.ValidateName(EntityActivity, "name", name); err != nil {
				return err
			}
			if in.ParentID != nil {
				if _, ok := view.FindActivity(*in.ParentID); !ok {
					return domain.NewValidationError(EntityActivity, "parent_id", "parent activity %d does not exist", *in.ParentID)
				}
			}
			if _, dup := view.FindActivityByNameAndParent(name, in.ParentID); dup {
				return ConflictError{Entity: EntityActivity, Field: "name", Value: name}
			}
			if in.ParentID != nil {
				if level := activityLevel(view, *in.ParentID); level >= domain.MaxActivityDepth-1 {
					return domain.NewValidationError(EntityActivity, "parent_id", "maximum nesting is %d levels", domain.MaxActivityDepth)
				}
			}
			var err error
			created, err = tx.CreateActivity(Activity{Name: name, ParentID: copyID(in.ParentID)})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateActivity renames and/or reparents an activity. Reparenting is refused
// when the new parent is the activity itself or one of its descendants, and
// when the moved subtree would end up deeper than the level cap.
func (s *Service) UpdateActivity(ctx context.Context, id int64, in ActivityInput) (Activity, Result, error) {
	var updated Activity
	var res Result
	err := s.run(ctx, "update_activity", func(ctx context.Context) (int64, error) {
		var err error
		res, err = s.write(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			current, ok := view.FindActivity(id)
			if !ok {
				return NotFoundError{Entity: EntityActivity, ID: id}
			}
			name := strings.TrimSpace(in.Name)
			if err := domain.ValidateName(EntityActivity, "name", name); err != nil {
				return err
			}
			parentChanged := !sameID(current.ParentID, in.ParentID)
			if name != current.Name || parentChanged {
				if other, dup := view.FindActivityByNameAndParent(name, in.ParentID); dup && other.ID != id {
					return ConflictError{Entity: EntityActivity, Field: "name", Value: name}
				}
			}
			if parentChanged && in.ParentID != nil {
				parentID := *in.ParentID
				if parentID == id {
					return domain.NewValidationError(EntityActivity, "parent_id", "activity cannot be its own parent")
				}
				if containsID(descendantIDs(view, id), parentID) {
					return domain.NewValidationError(EntityActivity, "parent_id", "activity %d is a descendant of %d; cycles are not allowed", parentID, id)
				}
				if _, ok := view.FindActivity(parentID); !ok {
					return domain.NewValidationError(EntityActivity, "parent_id", "parent activity %d does not exist", parentID)
				}
				if activityLevel(view, parentID)+1+subtreeHeight(view, id) > domain.MaxActivityDepth-1 {
					return domain.NewValidationError(EntityActivity, "parent_id", "moving activity %d under %d exceeds %d levels", id, parentID, domain.MaxActivityDepth)
				}
			}
			var err error
			updated, err = tx.UpdateActivity(id, func(a *Activity) error {
				a.Name = name
				a.ParentID = copyID(in.ParentID)
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteActivity removes a leaf activity with no linked organizations. It
// reports false without error when the activity does not exist.
func (s *Service) DeleteActivity(ctx context.Context, id int64) (bool, Result, error) {
	var deleted bool
	var res Result
	err := s.run(ctx, "delete_activity", func(ctx context.Context) (int64, error) {
		var err error
		res, err = s.write(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if _, ok := view.FindActivity(id); !ok {
				return nil
			}
			if len(view.ListActivityChildren(&id)) > 0 {
				return domain.NewValidationError(EntityActivity, "", "activity %d has child activities", id)
			}
			if view.CountOrganizationsForActivity(id) > 0 {
				return domain.NewValidationError(EntityActivity, "", "activity %d is linked to organizations", id)
			}
			if err := tx.DeleteActivity(id); err != nil {
				return err
			}
			deleted = true
			return nil
		})
		return id, err
	})
	return deleted, res, err
}

// GetActivity returns one activity.
func (s *Service) GetActivity(ctx context.Context, id int64) (Activity, error) {
	var out Activity
	err := s.run(ctx, "get_activity", func(ctx context.Context) (int64, error) {
		return id, s.view(ctx, func(v TransactionView) error {
			a, ok := v.FindActivity(id)
			if !ok {
				return NotFoundError{Entity: EntityActivity, ID: id}
			}
			out = a
			return nil
		})
	})
	return out, err
}

// ListActivities returns every activity ordered by ID.
func (s *Service) ListActivities(ctx context.Context) ([]Activity, error) {
	var out []Activity
	err := s.run(ctx, "list_activities", func(ctx context.Context) (int64, error) {
		return 0, s.view(ctx, func(v TransactionView) error {
			out = v.ListActivities()
			return nil
		})
	})
	return out, err
}

// DescendantActivityIDs returns id and every activity below it, ascending.
func (s *Service) DescendantActivityIDs(ctx context.Context, id int64) ([]int64, error) {
	var out []int64
	err := s.run(ctx, "descendant_activity_ids", func(ctx context.Context) (int64, error) {
		return id, s.view(ctx, func(v TransactionView) error {
			if _, ok := v.FindActivity(id); !ok {
				return NotFoundError{Entity: EntityActivity, ID: id}
			}
			out = descendantIDs(v, id)
			return nil
		})
	})
	return out, err
}

// ActivityLevel returns the 0-based depth of an activity.
func (s *Service) ActivityLevel(ctx context.Context, id int64) (int, error) {
	var level int
	err := s.run(ctx, "activity_level", func(ctx context.Context) (int64, error) {
		return id, s.view(ctx, func(v TransactionView) error {
			if _, ok := v.FindActivity(id); !ok {
				return NotFoundError{Entity: EntityActivity, ID: id}
			}
			level = activityLevel(v, id)
			return nil
		})
	})
	return level, err
}

// ActivityTree materializes the forest down to maxLevel levels; nodes on the
// last included level carry no children. A non-positive maxLevel yields an
// empty forest.
func (s *Service) ActivityTree(ctx context.Context, maxLevel int) ([]ActivityNode, error) {
	var out []ActivityNode
	err := s.run(ctx, "activity_tree", func(ctx context.Context) (int64, error) {
		return 0, s.view(ctx, func(v TransactionView) error {
			out = buildActivityTree(v, maxLevel)
			return nil
		})
	})
	return out, err
}

// DefaultActivityTree is ActivityTree at the depth configured with WithTreeLevels.
func (s *Service) DefaultActivityTree(ctx context.Context) ([]ActivityNode, error) {
	return s.ActivityTree(ctx, s.treeLevels)
}

// activityLevel counts parent hops from id to its root. A missing parent or a
// revisited node ends the walk.
func activityLevel(v TransactionView, id int64) int {
	level := 0
	seen := map[int64]struct{}{id: {}}
	current, ok := v.FindActivity(id)
	for ok && current.ParentID != nil {
		parentID := *current.ParentID
		if _, loop := seen[parentID]; loop {
			break
		}
		seen[parentID] = struct{}{}
		current, ok = v.FindActivity(parentID)
		if !ok {
			break
		}
		level++
	}
	return level
}

// descendantIDs walks children breadth first from id. The result includes id
// and is sorted ascending.
func descendantIDs(v TransactionView, id int64) []int64 {
	visited := map[int64]struct{}{id: {}}
	out := []int64{id}
	queue := []int64{id}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		parent := next
		for _, child := range v.ListActivityChildren(&parent) {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			out = append(out, child.ID)
			queue = append(queue, child.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// subtreeHeight is the number of levels below id (0 for a leaf).
func subtreeHeight(v TransactionView, id int64) int {
	type item struct {
		id    int64
		depth int
	}
	height := 0
	visited := map[int64]struct{}{id: {}}
	queue := []item{{id: id}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if it.depth > height {
			height = it.depth
		}
		parent := it.id
		for _, child := range v.ListActivityChildren(&parent) {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			queue = append(queue, item{id: child.ID, depth: it.depth + 1})
		}
	}
	return height
}

// buildActivityTree runs a worklist BFS from the roots. Nodes are allocated
// per level and linked to their parents once the level below is complete.
func buildActivityTree(v TransactionView, maxLevel int) []ActivityNode {
	if maxLevel <= 0 {
		return []ActivityNode{}
	}
	type pending struct {
		node  *ActivityNode
		level int
	}
	roots := v.ListActivityChildren(nil)
	forest := make([]*ActivityNode, 0, len(roots))
	visited := make(map[int64]struct{}, len(roots))
	var queue []pending
	for _, a := range roots {
		visited[a.ID] = struct{}{}
		n := &ActivityNode{Activity: a, Level: 0, Children: []ActivityNode{}}
		forest = append(forest, n)
		queue = append(queue, pending{node: n, level: 0})
	}
	children := make(map[int64][]*ActivityNode)
	var order []*ActivityNode
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		order = append(order, p.node)
		if p.level+1 >= maxLevel {
			continue
		}
		parent := p.node.ID
		for _, a := range v.ListActivityChildren(&parent) {
			if _, seen := visited[a.ID]; seen {
				continue
			}
			visited[a.ID] = struct{}{}
			n := &ActivityNode{Activity: a, Level: p.level + 1, Children: []ActivityNode{}}
			children[parent] = append(children[parent], n)
			queue = append(queue, pending{node: n, level: p.level + 1})
		}
	}
	// Deepest nodes first, so each child is complete before it is copied into
	// its parent.
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		for _, c := range children[n.ID] {
			n.Children = append(n.Children, *c)
		}
	}
	out := make([]ActivityNode, 0, len(forest))
	for _, n := range forest {
		out = append(out, *n)
	}
	return out
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func containsID(ids []int64, id int64) bool {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	return i < len(ids) && ids[i] == id
}
