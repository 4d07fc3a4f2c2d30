package model

import "go.mongodb.org/mongo-driver/bson/primitive"

type (
	User struct {
		ID           primitive.ObjectID `bson:"_id,omitempty"`
		Name         string             `bson:"name"`
		PasswordHash []byte             `bson:"password_hash"`
	}
)
