package mongodb

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"jobtracker/internal/domain/entity"
	"jobtracker/internal/domain/repository"
	"jobtracker/internal/infrastructure/metrics"
)

const storeName = "mongo"

type MongoJobRepo struct {
	jobsCol *mongo.Collection
}

func NewMongoJobRepo(db *mongo.Database) repository.JobRepository {
	col := db.Collection("jobs")

	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{bson.E{Key: "createdBy", Value: 1}, bson.E{Key: "status", Value: 1}}},
	})

	return &MongoJobRepo{
		jobsCol: col,
	}
}

func (r *MongoJobRepo) Insert(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	metrics.IncStoreOp(storeName, "insert")

	doc := *job
	doc.ID = uuid.NewString()
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := r.jobsCol.InsertOne(ctx, &doc); err != nil {
		metrics.IncError("mongo_job_repo", "insert_error")
		return nil, err
	}
	return &doc, nil
}

func (r *MongoJobRepo) FindByID(ctx context.Context, id string) (*entity.Job, error) {
	metrics.IncStoreOp(storeName, "get")

	var job entity.Job
	err := r.jobsCol.FindOne(ctx, bson.M{"id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		metrics.IncError("mongo_job_repo", "get_error")
		return nil, err
	}
	return &job, nil
}

func (r *MongoJobRepo) FindByOwner(ctx context.Context, owner string) ([]*entity.Job, error) {
	metrics.IncStoreOp(storeName, "list")

	opts := options.Find().SetSort(bson.D{bson.E{Key: "createdAt", Value: -1}})
	cur, err := r.jobsCol.Find(ctx, bson.M{"createdBy": owner}, opts)
	if err != nil {
		metrics.IncError("mongo_job_repo", "list_error")
		return nil, err
	}
	defer func() {
		err := cur.Close(ctx)
		if err != nil {
			log.Printf("close cursor err: %s", err)
		}
	}()

	jobs := []*entity.Job{}
	for cur.Next(ctx) {
		var j entity.Job
		if err := cur.Decode(&j); err != nil {
			metrics.IncError("mongo_job_repo", "list_decode_error")
			return nil, err
		}
		jobs = append(jobs, &j)
	}
	if err := cur.Err(); err != nil {
		metrics.IncError("mongo_job_repo", "list_cursor_error")
		return nil, err
	}
	return jobs, nil
}

func (r *MongoJobRepo) UpdateByID(ctx context.Context, id string, in entity.JobInput) (*entity.Job, error) {
	metrics.IncStoreOp(storeName, "update")

	if err := in.ValidatePatch(); err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var job entity.Job
	err := r.jobsCol.FindOneAndUpdate(ctx, bson.M{"id": id}, updateDocument(in, time.Now().UTC()), opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		metrics.IncError("mongo_job_repo", "update_error")
		return nil, err
	}
	return &job, nil
}

func (r *MongoJobRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	metrics.IncStoreOp(storeName, "delete")

	res, err := r.jobsCol.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		metrics.IncError("mongo_job_repo", "delete_error")
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoJobRepo) CountByOwnerGroupedByStatus(ctx context.Context, owner string) (map[entity.JobStatus]int, error) {
	metrics.IncStoreOp(storeName, "count")

	cur, err := r.jobsCol.Aggregate(ctx, statsPipeline(owner))
	if err != nil {
		metrics.IncError("mongo_job_repo", "count_error")
		return nil, err
	}
	defer func() {
		err := cur.Close(ctx)
		if err != nil {
			log.Printf("close cursor err: %s", err)
		}
	}()

	counts := make(map[entity.JobStatus]int)
	for cur.Next(ctx) {
		var row struct {
			Status entity.JobStatus `bson:"_id"`
			Count  int              `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			metrics.IncError("mongo_job_repo", "count_decode_error")
			return nil, err
		}
		counts[row.Status] = row.Count
	}
	return counts, cur.Err()
}

func (r *MongoJobRepo) Ping(ctx context.Context) error {
	return r.jobsCol.Database().Client().Ping(ctx, readpref.Primary())
}

// updateDocument builds a $set touching only the fields present in the input.
func updateDocument(in entity.JobInput, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if in.Company != nil {
		set["company"] = *in.Company
	}
	if in.Position != nil {
		set["position"] = *in.Position
	}
	if in.Status != nil {
		set["status"] = *in.Status
	}
	if in.JobType != nil {
		set["jobType"] = *in.JobType
	}
	if in.JobLocation != nil {
		set["jobLocation"] = *in.JobLocation
	}
	return bson.M{"$set": set}
}

func statsPipeline(owner string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "createdBy", Value: owner}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
}
