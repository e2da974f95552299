package mongoscope

import (
	"context"
	"testing"
	"time"

	"crmhub/internal/tenant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	orgA = "6f1c1f0e-8f5a-4c39-9a57-1f3b0d7f0a01"
	orgB = "0b7e3a52-2d4c-4a8e-b1d6-93c2f5e4a702"
)

type logDoc struct {
	ID        string    `bson:"_id,omitempty"`
	OrgID     string    `bson:"orgId,omitempty"`
	Action    string    `bson:"action"`
	CreatedAt time.Time `bson:"createdAt"`
}

type plainDoc struct {
	Name string `bson:"name"`
}

func newScoped() *Collection {
	return Attach(nil, logDoc{}, tenant.ScopeConfig{ExemptRoles: []string{"SUPER_ADMIN"}}, nil)
}

func ctxFor(orgID, role string) context.Context {
	return tenant.WithContext(context.Background(), tenant.Context{UserID: "u-1", OrgID: orgID, Role: role})
}

func TestFilterAddsOrg(t *testing.T) {
	c := newScoped()
	in := bson.M{"action": "login"}

	out := c.Filter(ctxFor(orgA, "ADMIN"), in)
	assert.Equal(t, bson.M{"action": "login", "orgId": orgA}, out)
	assert.NotContains(t, in, "orgId", "input filter must not be modified")
}

func TestFilterDecisions(t *testing.T) {
	c := newScoped()

	tests := []struct {
		name   string
		coll   *Collection
		ctx    context.Context
		filter bson.M
		want   bson.M
	}{
		{"无上下文", c, context.Background(), bson.M{}, bson.M{}},
		{"豁免角色", c, ctxFor(orgA, "SUPER_ADMIN"), bson.M{}, bson.M{}},
		{"上下文跳过", c, tenant.WithSkipTenant(ctxFor(orgA, "ADMIN")), bson.M{}, bson.M{}},
		{"单次跳过", c.WithoutTenant(), ctxFor(orgA, "ADMIN"), bson.M{}, bson.M{}},
		{"非法组织", c, ctxFor("org1", "ADMIN"), bson.M{}, bson.M{}},
		{"显式组织优先", c, ctxFor(orgA, "ADMIN"), bson.M{"orgId": orgB}, bson.M{"orgId": orgB}},
		{
			"嵌套 $or 中的显式组织",
			c, ctxFor(orgA, "ADMIN"),
			bson.M{"$or": bson.A{bson.M{"orgId": orgB}, bson.M{"action": "x"}}},
			bson.M{"$or": bson.A{bson.M{"orgId": orgB}, bson.M{"action": "x"}}},
		},
		{"大写组织被规范化", c, ctxFor("6F1C1F0E-8F5A-4C39-9A57-1F3B0D7F0A01", "ADMIN"), bson.M{}, bson.M{"orgId": orgA}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coll.Filter(tt.ctx, tt.filter))
		})
	}
}

func TestPipelinePrependsMatch(t *testing.T) {
	c := newScoped()
	group := bson.D{{Key: "$group", Value: bson.M{"_id": "$action", "count": bson.M{"$sum": 1}}}}

	out := c.Pipeline(ctxFor(orgA, "ADMIN"), mongo.Pipeline{group})
	require.Len(t, out, 2)
	assert.Equal(t, bson.D{{Key: "$match", Value: bson.M{"orgId": orgA}}}, out[0])
	assert.Equal(t, group, out[1])

	t.Run("已有 $match 约束组织", func(t *testing.T) {
		p := mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"orgId": orgB}}},
			group,
		}
		assert.Equal(t, p, c.Pipeline(ctxFor(orgA, "ADMIN"), p))
	})

	t.Run("分组之后的 $match 不算", func(t *testing.T) {
		p := mongo.Pipeline{group, {{Key: "$match", Value: bson.M{"orgId": orgB}}}}
		assert.Len(t, c.Pipeline(ctxFor(orgA, "ADMIN"), p), 3)
	})

	t.Run("无上下文保持原样", func(t *testing.T) {
		p := mongo.Pipeline{group}
		assert.Equal(t, p, c.Pipeline(context.Background(), p))
	})
}

func TestTagDocuments(t *testing.T) {
	c := newScoped()
	ctx := ctxFor(orgA, "ADMIN")

	t.Run("bson.M", func(t *testing.T) {
		got, err := c.Tag(ctx, bson.M{"action": "create"})
		require.NoError(t, err)
		assert.Equal(t, orgA, got.(bson.M)["orgId"])
	})

	t.Run("nil bson.M", func(t *testing.T) {
		got, err := c.Tag(ctx, bson.M(nil))
		require.NoError(t, err)
		assert.Equal(t, bson.M{"orgId": orgA}, got)
	})

	t.Run("bson.D", func(t *testing.T) {
		got, err := c.Tag(ctx, bson.D{{Key: "action", Value: "create"}})
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "action", Value: "create"}, {Key: "orgId", Value: orgA}}, got)
	})

	t.Run("结构体指针", func(t *testing.T) {
		doc := &logDoc{Action: "create"}
		_, err := c.Tag(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, orgA, doc.OrgID)
	})

	t.Run("结构体值被复制", func(t *testing.T) {
		doc := logDoc{Action: "create"}
		got, err := c.Tag(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, orgA, got.(*logDoc).OrgID)
		assert.Empty(t, doc.OrgID)
	})

	t.Run("显式组织保留", func(t *testing.T) {
		doc := &logDoc{OrgID: orgB}
		_, err := c.Tag(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, orgB, doc.OrgID)
	})

	t.Run("无上下文不打标", func(t *testing.T) {
		doc := bson.M{}
		got, err := c.Tag(context.Background(), doc)
		require.NoError(t, err)
		assert.NotContains(t, got.(bson.M), "orgId")
	})
}

func TestAttachWithoutOrgField(t *testing.T) {
	c := Attach(nil, plainDoc{}, tenant.ScopeConfig{}, nil)
	assert.False(t, c.Enabled())
	assert.Equal(t, bson.M{"name": "x"}, c.Filter(ctxFor(orgA, "ADMIN"), bson.M{"name": "x"}))

	doc := bson.M{}
	got, err := c.Tag(ctxFor(orgA, "ADMIN"), doc)
	require.NoError(t, err)
	assert.NotContains(t, got.(bson.M), "orgId")
}
