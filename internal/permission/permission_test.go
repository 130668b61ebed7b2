// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package permission

import "testing"

func TestCheck_LocalAlwaysAllows(t *testing.T) {
	e := NewEvaluator()
	ctx := Local()
	for i := 0; i < 100; i++ {
		if !e.Check(ctx, PermissionManageRepository, ResourceRegistersPerHour) {
			t.Fatal("expected Local mode to always allow")
		}
	}
}

func TestCheck_OpenAllowsAnyPermissionButEnforcesLimit(t *testing.T) {
	e := NewEvaluator()
	ctx := Context{
		Identity: "user-1",
		Mode:     ModeOpen,
		Limits:   map[ResourceType]int{ResourceQueriesPerHour: 2},
	}
	if !e.Check(ctx, PermissionManageRepository, ResourceQueriesPerHour) {
		t.Fatal("expected first call to be allowed")
	}
	if !e.Check(ctx, PermissionQuery, ResourceQueriesPerHour) {
		t.Fatal("expected second call to be allowed")
	}
	if e.Check(ctx, PermissionQuery, ResourceQueriesPerHour) {
		t.Fatal("expected third call to be rejected once the hourly limit is hit")
	}
}

func TestCheck_RestrictedRequiresPermissionAndLimit(t *testing.T) {
	e := NewEvaluator()
	ctx := Context{
		Identity:    "user-2",
		Mode:        ModeRestricted,
		Permissions: map[Permission]bool{PermissionQuery: true},
		Limits:      map[ResourceType]int{ResourceQueriesPerHour: 1},
	}
	if e.Check(ctx, PermissionManageRepository, ResourceQueriesPerHour) {
		t.Fatal("expected Restricted mode to reject a permission the caller lacks")
	}
	if !e.Check(ctx, PermissionQuery, ResourceQueriesPerHour) {
		t.Fatal("expected first query within limit to be allowed")
	}
	if e.Check(ctx, PermissionQuery, ResourceQueriesPerHour) {
		t.Fatal("expected second query to exceed the hourly limit")
	}
}

func TestCheck_NoLimitConfiguredSkipsRateCheck(t *testing.T) {
	e := NewEvaluator()
	ctx := Context{
		Identity:    "user-3",
		Mode:        ModeRestricted,
		Permissions: map[Permission]bool{PermissionQuery: true},
	}
	for i := 0; i < 50; i++ {
		if !e.Check(ctx, PermissionQuery, ResourceQueriesPerHour) {
			t.Fatal("expected no configured limit to mean unlimited calls")
		}
	}
}

func TestCheck_AnonymousCallersShareABucket(t *testing.T) {
	e := NewEvaluator()
	limits := map[ResourceType]int{ResourceQueriesPerHour: 1}
	a := Context{Mode: ModeRestricted, Permissions: map[Permission]bool{PermissionQuery: true}, Limits: limits}
	b := Context{Mode: ModeRestricted, Permissions: map[Permission]bool{PermissionQuery: true}, Limits: limits}

	if !e.Check(a, PermissionQuery, ResourceQueriesPerHour) {
		t.Fatal("expected first anonymous call to be allowed")
	}
	if e.Check(b, PermissionQuery, ResourceQueriesPerHour) {
		t.Fatal("expected second anonymous call to share the same bucket and be rejected")
	}
}
