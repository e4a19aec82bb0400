package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/dataencryption"
	"github.com/chirino/chat-service/internal/model"
	registrymigrate "github.com/chirino/chat-service/internal/registry/migrate"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.ChatStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			var enc TextCipher
			if svc := dataencryption.FromContext(ctx); svc != nil {
				enc = svc
			}
			return New(client.Database(databaseName(cfg)), enc), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: registrymigrate.OrderStoreSchema, Migrator: &mongoMigrator{}})
}

func databaseName(cfg *config.Config) string {
	if cfg != nil && cfg.DBName != "" {
		return cfg.DBName
	}
	return "chat_service"
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	if err := EnsureSchema(ctx, client.Database(databaseName(cfg))); err != nil {
		return err
	}
	log.Info("MongoDB schema migration complete")
	return nil
}

const emailIndexName = "email_1"

// EnsureSchema creates the collections and indexes used by the store.
func EnsureSchema(ctx context.Context, db *mongo.Database) error {
	collections := map[string][]mongo.IndexModel{
		"users": {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName(emailIndexName).SetUnique(true).SetSparse(true),
			},
		},
		"messages": {
			{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "seen", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		"groups": {
			{Keys: bson.D{{Key: "member_ids", Value: 1}, {Key: "updated_at", Value: -1}}},
		},
	}

	for name, indexes := range collections {
		// Ensure collection exists
		db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}
	return nil
}

// TextCipher encrypts message text at rest.
type TextCipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// MongoStore implements ChatStore using MongoDB.
type MongoStore struct {
	db  *mongo.Database
	enc TextCipher
}

// New returns a store over db. A nil enc stores message text as-is.
func New(db *mongo.Database, enc TextCipher) *MongoStore {
	return &MongoStore{db: db, enc: enc}
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func (s *MongoStore) encryptText(text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	if s.enc == nil {
		return []byte(text), nil
	}
	return s.enc.Encrypt([]byte(text))
}

func (s *MongoStore) decryptText(data []byte) string {
	if s.enc == nil || data == nil {
		return string(data)
	}
	plain, err := s.enc.Decrypt(data)
	if err != nil {
		log.Warn("Failed to decrypt message text", "err", err)
		return ""
	}
	return string(plain)
}

// --- MongoDB document types ---

type userDoc struct {
	ID             string    `bson:"_id"`
	Username       string    `bson:"username"`
	Email          string    `bson:"email,omitempty"`
	ProfilePicture string    `bson:"profile_picture"`
	Bio            string    `bson:"bio"`
	CreatedAt      time.Time `bson:"created_at"`
}

func (d userDoc) toModel() model.User {
	return model.User{
		ID:             d.ID,
		Username:       d.Username,
		Email:          d.Email,
		ProfilePicture: d.ProfilePicture,
		Bio:            d.Bio,
		CreatedAt:      d.CreatedAt,
	}
}

type messageDoc struct {
	ID         string     `bson:"_id"`
	SenderID   string     `bson:"sender_id"`
	ReceiverID *string    `bson:"receiver_id,omitempty"`
	GroupID    *string    `bson:"group_id,omitempty"`
	Text       []byte     `bson:"text,omitempty"`
	Image      string     `bson:"image,omitempty"`
	Seen       bool       `bson:"seen"`
	SeenBy     []string   `bson:"seen_by,omitempty"`
	Edited     bool       `bson:"edited"`
	EditedAt   *time.Time `bson:"edited_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
}

func (s *MongoStore) messageToModel(d messageDoc) model.Message {
	return model.Message{
		ID:        d.ID,
		Sender:    model.Unresolved[model.User](d.SenderID),
		Receiver:  d.ReceiverID,
		Group:     d.GroupID,
		Text:      s.decryptText(d.Text),
		Image:     d.Image,
		Seen:      d.Seen,
		SeenBy:    d.SeenBy,
		Edited:    d.Edited,
		EditedAt:  d.EditedAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type groupDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Description   string    `bson:"description"`
	Avatar        string    `bson:"avatar"`
	CreatorID     string    `bson:"creator_id"`
	MemberIDs     []string  `bson:"member_ids"`
	AdminIDs      []string  `bson:"admin_ids"`
	LastMessageID *string   `bson:"last_message_id,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (d groupDoc) toModel() model.Group {
	g := model.Group{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Avatar:      d.Avatar,
		Creator:     model.Unresolved[model.User](d.CreatorID),
		Members:     model.UnresolvedRefs[model.User](d.MemberIDs),
		Admins:      d.AdminIDs,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if g.Admins == nil {
		g.Admins = []string{}
	}
	if d.LastMessageID != nil {
		ref := model.Unresolved[model.Message](*d.LastMessageID)
		g.LastMessage = &ref
	}
	return g
}

// --- Collection accessors ---

func (s *MongoStore) users() *mongo.Collection    { return s.db.Collection("users") }
func (s *MongoStore) messages() *mongo.Collection { return s.db.Collection("messages") }
func (s *MongoStore) groups() *mongo.Collection   { return s.db.Collection("groups") }

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// newID returns a time-ordered id so sorting on _id follows insertion order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func afterUpdate() *options.FindOneAndUpdateOptionsBuilder {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

// --- Users ---

func (s *MongoStore) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}
	doc := userDoc{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		ProfilePicture: user.ProfilePicture,
		Bio:            user.Bio,
		CreatedAt:      user.CreatedAt,
	}
	if _, err := s.users().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if duplicateEmail(err) {
				return nil, &registrystore.ConflictError{Message: "email already in use", Code: registrystore.ConflictDuplicateEmail}
			}
			return nil, &registrystore.ConflictError{Message: "user already exists", Code: registrystore.ConflictDuplicateUser}
		}
		return nil, registrystore.Wrap("create user", err)
	}
	result := doc.toModel()
	return &result, nil
}

// duplicateEmail reports whether a duplicate key error came from the unique
// users.email index rather than _id.
func duplicateEmail(err error) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code != 11000 {
			continue
		}
		if _, lookupErr := e.Raw.LookupErr("keyPattern", "email"); lookupErr == nil {
			return true
		}
		if strings.Contains(e.Message, "index: "+emailIndexName) {
			return true
		}
	}
	return false
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var doc userDoc
	if err := s.users().FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "user", ID: userID}
		}
		return nil, registrystore.Wrap("get user", err)
	}
	u := doc.toModel()
	return &u, nil
}

func (s *MongoStore) findUsers(ctx context.Context, op string, filter bson.M) ([]model.User, error) {
	cur, err := s.users().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, registrystore.Wrap(op, err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, registrystore.Wrap(op, err)
	}
	result := make([]model.User, len(docs))
	for i, d := range docs {
		result[i] = d.toModel()
	}
	return result, nil
}

func (s *MongoStore) GetUsers(ctx context.Context, userIDs []string) ([]model.User, error) {
	if len(userIDs) == 0 {
		return []model.User{}, nil
	}
	return s.findUsers(ctx, "get users", bson.M{"_id": bson.M{"$in": userIDs}})
}

func (s *MongoStore) ListUsersExcept(ctx context.Context, userID string) ([]model.User, error) {
	return s.findUsers(ctx, "list users", bson.M{"_id": bson.M{"$ne": userID}})
}

func (s *MongoStore) UpdateUserProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	set := bson.M{}
	if update.Username != nil {
		set["username"] = *update.Username
	}
	if update.ProfilePicture != nil {
		set["profile_picture"] = *update.ProfilePicture
	}
	if update.Bio != nil {
		set["bio"] = *update.Bio
	}
	if len(set) == 0 {
		return s.GetUser(ctx, userID)
	}
	var doc userDoc
	err := s.users().FindOneAndUpdate(ctx, bson.M{"_id": userID}, bson.M{"$set": set}, afterUpdate()).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "user", ID: userID}
		}
		return nil, registrystore.Wrap("update user profile", err)
	}
	u := doc.toModel()
	return &u, nil
}

// --- Messages ---

func (s *MongoStore) CreateMessage(ctx context.Context, msg model.Message) (*model.Message, error) {
	if err := registrystore.ValidateMessage(msg); err != nil {
		return nil, err
	}
	text, err := s.encryptText(msg.Text)
	if err != nil {
		return nil, fmt.Errorf("encrypt message text: %w", err)
	}
	ts := now()
	doc := messageDoc{
		ID:         newID(),
		SenderID:   msg.Sender.ID(),
		ReceiverID: msg.Receiver,
		GroupID:    msg.Group,
		Text:       text,
		Image:      msg.Image,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if msg.IsGroupMessage() {
		doc.SeenBy = msg.SeenBy
		if doc.SeenBy == nil {
			doc.SeenBy = []string{}
		}
	}
	if _, err := s.messages().InsertOne(ctx, doc); err != nil {
		return nil, registrystore.Wrap("create message", err)
	}
	result := s.messageToModel(doc)
	result.Text = msg.Text
	return &result, nil
}

func (s *MongoStore) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	var doc messageDoc
	if err := s.messages().FindOne(ctx, bson.M{"_id": messageID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
		}
		return nil, registrystore.Wrap("get message", err)
	}
	m := s.messageToModel(doc)
	return &m, nil
}

func (s *MongoStore) findMessages(ctx context.Context, op string, filter bson.M) ([]model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, registrystore.Wrap(op, err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, registrystore.Wrap(op, err)
	}
	result := make([]model.Message, len(docs))
	for i, d := range docs {
		result[i] = s.messageToModel(d)
	}
	return result, nil
}

func (s *MongoStore) GetMessages(ctx context.Context, messageIDs []string) ([]model.Message, error) {
	if len(messageIDs) == 0 {
		return []model.Message{}, nil
	}
	return s.findMessages(ctx, "get messages", bson.M{"_id": bson.M{"$in": messageIDs}})
}

func (s *MongoStore) UpdateMessageText(ctx context.Context, messageID string, text string, editedAt time.Time) (*model.Message, error) {
	sealed, err := s.encryptText(text)
	if err != nil {
		return nil, fmt.Errorf("encrypt message text: %w", err)
	}
	var doc messageDoc
	err = s.messages().FindOneAndUpdate(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{
			"text":       sealed,
			"edited":     true,
			"edited_at":  editedAt.UTC(),
			"updated_at": now(),
		}},
		afterUpdate(),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
		}
		return nil, registrystore.Wrap("update message", err)
	}
	m := s.messageToModel(doc)
	return &m, nil
}

func (s *MongoStore) DeleteMessage(ctx context.Context, messageID string) error {
	res, err := s.messages().DeleteOne(ctx, bson.M{"_id": messageID})
	if err != nil {
		return registrystore.Wrap("delete message", err)
	}
	if res.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	return nil
}

func (s *MongoStore) DeleteGroupMessages(ctx context.Context, groupID string) (int64, error) {
	res, err := s.messages().DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, registrystore.Wrap("delete group messages", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) ListDirectMessages(ctx context.Context, userA, userB string) ([]model.Message, error) {
	return s.findMessages(ctx, "list direct messages", bson.M{"$or": bson.A{
		bson.M{"sender_id": userA, "receiver_id": userB},
		bson.M{"sender_id": userB, "receiver_id": userA},
	}})
}

func (s *MongoStore) ListGroupMessages(ctx context.Context, groupID string) ([]model.Message, error) {
	return s.findMessages(ctx, "list group messages", bson.M{"group_id": groupID})
}

func (s *MongoStore) MarkDirectSeen(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	res, err := s.messages().UpdateMany(ctx,
		bson.M{"sender_id": fromUserID, "receiver_id": toUserID, "seen": false},
		bson.M{"$set": bson.M{"seen": true}},
	)
	if err != nil {
		return 0, registrystore.Wrap("mark direct seen", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) MarkGroupSeen(ctx context.Context, groupID, userID string) (int64, error) {
	res, err := s.messages().UpdateMany(ctx,
		bson.M{
			"group_id":  groupID,
			"sender_id": bson.M{"$ne": userID},
			"seen_by":   bson.M{"$ne": userID},
		},
		bson.M{"$addToSet": bson.M{"seen_by": userID}},
	)
	if err != nil {
		return 0, registrystore.Wrap("mark group seen", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) CountUnseen(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	n, err := s.messages().CountDocuments(ctx, bson.M{
		"sender_id":   fromUserID,
		"receiver_id": toUserID,
		"seen":        false,
	})
	if err != nil {
		return 0, registrystore.Wrap("count unseen", err)
	}
	return n, nil
}

// --- Groups ---

func (s *MongoStore) CreateGroup(ctx context.Context, group model.Group) (*model.Group, error) {
	if err := registrystore.ValidateGroup(group); err != nil {
		return nil, err
	}
	ts := now()
	doc := groupDoc{
		ID:          uuid.NewString(),
		Name:        group.Name,
		Description: group.Description,
		Avatar:      group.Avatar,
		CreatorID:   group.Creator.ID(),
		MemberIDs:   lo.Uniq(group.MemberIDs()),
		AdminIDs:    lo.Uniq(group.Admins),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if _, err := s.groups().InsertOne(ctx, doc); err != nil {
		return nil, registrystore.Wrap("create group", err)
	}
	g := doc.toModel()
	return &g, nil
}

func (s *MongoStore) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	var doc groupDoc
	if err := s.groups().FindOne(ctx, bson.M{"_id": groupID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "group", ID: groupID}
		}
		return nil, registrystore.Wrap("get group", err)
	}
	g := doc.toModel()
	return &g, nil
}

func (s *MongoStore) ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.groups().Find(ctx, bson.M{"member_ids": userID}, opts)
	if err != nil {
		return nil, registrystore.Wrap("list groups", err)
	}
	var docs []groupDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, registrystore.Wrap("list groups", err)
	}
	result := make([]model.Group, len(docs))
	for i, d := range docs {
		result[i] = d.toModel()
	}
	return result, nil
}

// updateGroup applies update atomically and returns the group as stored afterwards.
func (s *MongoStore) updateGroup(ctx context.Context, op, groupID string, update bson.M) (*model.Group, error) {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
		update["$set"] = set
	}
	set["updated_at"] = now()

	var doc groupDoc
	err := s.groups().FindOneAndUpdate(ctx, bson.M{"_id": groupID}, update, afterUpdate()).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "group", ID: groupID}
		}
		return nil, registrystore.Wrap(op, err)
	}
	g := doc.toModel()
	return &g, nil
}

func (s *MongoStore) UpdateGroupInfo(ctx context.Context, groupID string, update model.GroupInfoUpdate) (*model.Group, error) {
	set := bson.M{}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Avatar != nil {
		set["avatar"] = *update.Avatar
	}
	return s.updateGroup(ctx, "update group info", groupID, bson.M{"$set": set})
}

func (s *MongoStore) SetLastMessage(ctx context.Context, groupID, messageID string) error {
	_, err := s.updateGroup(ctx, "set last message", groupID, bson.M{"$set": bson.M{"last_message_id": messageID}})
	return err
}

func (s *MongoStore) AddGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error) {
	return s.updateGroup(ctx, "add group member", groupID, bson.M{
		"$addToSet": bson.M{"member_ids": userID},
	})
}

func (s *MongoStore) RemoveGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error) {
	return s.updateGroup(ctx, "remove group member", groupID, bson.M{
		"$pull": bson.M{"member_ids": userID, "admin_ids": userID},
	})
}

func (s *MongoStore) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := s.groups().DeleteOne(ctx, bson.M{"_id": groupID})
	if err != nil {
		return registrystore.Wrap("delete group", err)
	}
	if res.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: "group", ID: groupID}
	}
	return nil
}

var _ registrystore.ChatStore = (*MongoStore)(nil)
