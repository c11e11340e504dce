package server

var CollectionPrefix = collectionPrefix
