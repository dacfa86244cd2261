package oteladapters

var ToLogAttributes = toLogAttributes
