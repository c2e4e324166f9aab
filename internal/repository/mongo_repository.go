package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
	groupsCollection   = "groups"

	// optimistic read-modify-write attempts before giving up with a conflict
	maxVersionRetries = 5
)

// NewMongoStore wires the document-backed repositories.
func NewMongoStore(db *mongo.Database) Store {
	return Store{
		Users:    &MongoUserRepository{col: db.Collection(usersCollection)},
		Messages: &MongoMessageRepository{col: db.Collection(messagesCollection)},
		Groups:   &MongoGroupRepository{col: db.Collection(groupsCollection)},
	}
}

// EnsureMongoIndexes creates the indexes the message and group queries rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	plan := map[string][]mongo.IndexModel{
		usersCollection: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetName("idx_username").SetUnique(true),
			},
		},
		messagesCollection: {
			{
				Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_group_created"),
			},
			{
				Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_direct_pair"),
			},
		},
		groupsCollection: {
			{
				Keys:    bson.D{{Key: "members.user_id", Value: 1}},
				Options: options.Index().SetName("idx_members"),
			},
		},
	}
	for name, models := range plan {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

type MongoUserRepository struct {
	col *mongo.Collection
}

func (r *MongoUserRepository) Create(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	doc := userDoc{
		ID:           u.ID.String(),
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		BlockedUsers: idStrings(u.BlockedUsers),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return relay_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	var doc userDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, relay_errors.ErrNotFound
		}
		return user.User{}, err
	}
	return userFromDoc(doc), nil
}

func (r *MongoUserRepository) GetMany(ctx context.Context, ids []uuid.UUID) ([]user.User, error) {
	if len(ids) == 0 {
		return []user.User{}, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]user.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, userFromDoc(d))
	}
	return out, nil
}

func (r *MongoUserRepository) Block(ctx context.Context, userID, targetID uuid.UUID) error {
	return r.updateBlocks(ctx, userID, bson.M{"$addToSet": bson.M{"blocked_users": targetID.String()}})
}

func (r *MongoUserRepository) Unblock(ctx context.Context, userID, targetID uuid.UUID) error {
	return r.updateBlocks(ctx, userID, bson.M{"$pull": bson.M{"blocked_users": targetID.String()}})
}

func (r *MongoUserRepository) updateBlocks(ctx context.Context, userID uuid.UUID, update bson.M) error {
	update["$set"] = bson.M{"updated_at": time.Now().UTC()}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": userID.String()}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

type MongoMessageRepository struct {
	col *mongo.Collection
}

func (r *MongoMessageRepository) Create(ctx context.Context, m *message.Message) error {
	if _, err := r.col.InsertOne(ctx, docFromMessage(*m, 1)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return relay_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *MongoMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	doc, err := r.load(ctx, id)
	if err != nil {
		return message.Message{}, err
	}
	return messageFromDoc(doc), nil
}

func (r *MongoMessageRepository) load(ctx context.Context, id uuid.UUID) (messageDoc, error) {
	var doc messageDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return messageDoc{}, relay_errors.ErrNotFound
		}
		return messageDoc{}, err
	}
	return doc, nil
}

// Update replaces the document only if its version is unchanged since the
// read, retrying a bounded number of times.
func (r *MongoMessageRepository) Update(ctx context.Context, id uuid.UUID, fn func(*message.Message) error) (message.Message, error) {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		doc, err := r.load(ctx, id)
		if err != nil {
			return message.Message{}, err
		}
		m := messageFromDoc(doc)
		if err := fn(&m); err != nil {
			return message.Message{}, err
		}
		res, err := r.col.ReplaceOne(ctx,
			bson.M{"_id": doc.ID, "version": doc.Version},
			docFromMessage(m, doc.Version+1),
		)
		if err != nil {
			return message.Message{}, err
		}
		if res.MatchedCount == 1 {
			return m, nil
		}
	}
	return message.Message{}, relay_errors.New(relay_errors.ErrConflict, "message was modified concurrently")
}

func (r *MongoMessageRepository) Find(ctx context.Context, f MessageFilter) ([]message.Message, error) {
	dir := -1
	if f.Oldest {
		dir = 1
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := r.col.Find(ctx, messageQuery(f), opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]message.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, messageFromDoc(d))
	}
	return out, nil
}

func (r *MongoMessageRepository) Count(ctx context.Context, f MessageFilter) (int64, error) {
	return r.col.CountDocuments(ctx, messageQuery(f))
}

func (r *MongoMessageRepository) MarkDirectRead(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"sender_id": senderID.String(), "receiver_id": receiverID.String(), "is_read": false, "withheld": false},
		bson.M{"$set": bson.M{"is_read": true}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoMessageRepository) DirectCounterparts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	me := userID.String()
	sentTo, err := r.col.Distinct(ctx, "receiver_id", bson.M{"sender_id": me, "receiver_id": bson.M{"$exists": true}})
	if err != nil {
		return nil, err
	}
	receivedFrom, err := r.col.Distinct(ctx, "sender_id", bson.M{"receiver_id": me})
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{})
	out := make([]uuid.UUID, 0, len(sentTo)+len(receivedFrom))
	for _, v := range append(sentTo, receivedFrom...) {
		s, ok := v.(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// messageQuery is the BSON rendition of MessageFilter.Match.
func messageQuery(f MessageFilter) bson.M {
	var and []bson.M
	if p := f.DirectPair; p != nil {
		a, b := p.A.String(), p.B.String()
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"sender_id": a, "receiver_id": b},
			bson.M{"sender_id": b, "receiver_id": a},
		}})
	}
	if f.GroupID.Valid {
		and = append(and, bson.M{"group_id": f.GroupID.UUID.String()})
	}
	if f.SenderID.Valid {
		and = append(and, bson.M{"sender_id": f.SenderID.UUID.String()})
	}
	if f.ExcludeSenderID.Valid {
		and = append(and, bson.M{"sender_id": bson.M{"$ne": f.ExcludeSenderID.UUID.String()}})
	}
	if f.ReceiverID.Valid {
		and = append(and, bson.M{"receiver_id": f.ReceiverID.UUID.String()})
	}
	if f.VisibleTo.Valid {
		v := f.VisibleTo.UUID.String()
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"message_type": string(message.TypeSystem)},
			bson.M{"sender_id": v, "deleted_for_sender": false},
			bson.M{"sender_id": bson.M{"$ne": v}, "receiver_id": v, "deleted_for_receiver": false, "withheld": false},
			bson.M{"sender_id": bson.M{"$ne": v}, "group_id": bson.M{"$exists": true}, "deleted_for_users": bson.M{"$ne": v}},
		}})
	}

	created := bson.M{}
	if !f.After.IsZero() {
		created["$gt"] = f.After
	}
	if !f.NotBefore.IsZero() {
		created["$gte"] = f.NotBefore
	}
	if !f.NotAfter.IsZero() {
		created["$lte"] = f.NotAfter
	}
	if !f.Before.IsZero() {
		created["$lt"] = f.Before
	}
	if len(created) > 0 {
		and = append(and, bson.M{"created_at": created})
	}
	if f.UnreadOnly {
		and = append(and, bson.M{"is_read": false})
	}
	if f.ExcludeSystem {
		and = append(and, bson.M{"message_type": bson.M{"$ne": string(message.TypeSystem)}})
	}

	if len(and) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": and}
}

type MongoGroupRepository struct {
	col *mongo.Collection
}

func (r *MongoGroupRepository) Create(ctx context.Context, g *group.Group) error {
	if _, err := r.col.InsertOne(ctx, docFromGroup(*g, 1)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return relay_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *MongoGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (group.Group, error) {
	doc, err := r.load(ctx, id)
	if err != nil {
		return group.Group{}, err
	}
	return groupFromDoc(doc), nil
}

func (r *MongoGroupRepository) load(ctx context.Context, id uuid.UUID) (groupDoc, error) {
	var doc groupDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return groupDoc{}, relay_errors.ErrNotFound
		}
		return groupDoc{}, err
	}
	return doc, nil
}

func (r *MongoGroupRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]group.Group, error) {
	me := userID.String()
	filter := bson.M{"$or": bson.A{
		bson.M{"members.user_id": me},
		bson.M{"left_members.user_id": me},
		bson.M{"removed_members.user_id": me},
	}}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []groupDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]group.Group, 0, len(docs))
	for _, d := range docs {
		out = append(out, groupFromDoc(d))
	}
	return out, nil
}

// mutate is the versioned read-modify-write used for every group change.
// fn reports whether anything changed; unchanged groups are not written.
func (r *MongoGroupRepository) mutate(ctx context.Context, groupID uuid.UUID, fn func(*group.Group) (bool, error)) error {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		doc, err := r.load(ctx, groupID)
		if err != nil {
			return err
		}
		g := groupFromDoc(doc)
		changed, err := fn(&g)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		g.UpdatedAt = time.Now().UTC()
		res, err := r.col.ReplaceOne(ctx,
			bson.M{"_id": doc.ID, "version": doc.Version},
			docFromGroup(g, doc.Version+1),
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return relay_errors.New(relay_errors.ErrConflict, "group was modified concurrently")
}

func (r *MongoGroupRepository) AddMember(ctx context.Context, groupID uuid.UUID, m group.Member) error {
	return r.mutate(ctx, groupID, func(g *group.Group) (bool, error) {
		return true, applyAddMember(g, m)
	})
}

func (r *MongoGroupRepository) UpdateMember(ctx context.Context, groupID, userID uuid.UUID, patch MemberPatch) error {
	return r.mutate(ctx, groupID, func(g *group.Group) (bool, error) {
		return true, applyMemberPatch(g, userID, patch)
	})
}

func (r *MongoGroupRepository) RemoveMember(ctx context.Context, groupID uuid.UUID, kind group.DepartureKind, d group.Departure) error {
	return r.mutate(ctx, groupID, func(g *group.Group) (bool, error) {
		return true, applyRemoveMember(g, kind, d)
	})
}

func (r *MongoGroupRepository) SetLatestMessage(ctx context.Context, groupID uuid.UUID, latest group.LatestMessage) error {
	return r.mutate(ctx, groupID, func(g *group.Group) (bool, error) {
		return applySetLatest(g, latest), nil
	})
}

func (r *MongoGroupRepository) RefreshLatestMessage(ctx context.Context, groupID uuid.UUID, latest group.LatestMessage) error {
	return r.mutate(ctx, groupID, func(g *group.Group) (bool, error) {
		return applyRefreshLatest(g, latest), nil
	})
}
